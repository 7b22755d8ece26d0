// Package harness runs conformance scenarios against the real client.
//
// Every scenario gets a fresh database in a temporary directory, an
// in-process reference endpoint (devserver) behind a switchable network,
// a step clock and sequential submission ids, so the resulting trace is
// identical across runs and can be compared against a golden file.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: offline_then_online
//	description: "Records created offline sync once the network returns"
//	steps:
//	  - action: offline
//	  - action: create
//	    text: "leaf rust on wheat"
//	    count: 2
//	  - action: sync
//	    expect: { outcome: transport }
//	  - action: online
//	  - action: sync
//	    expect: { synced: 2 }
//	assertions:
//	  - type: collection_count
//	    collection: pending
//	    count: 0
//
// # Step Actions
//
//   - create: creates count records (default 1) with text and image
//   - sync: one Sync call
//   - sync_concurrent: count Sync calls (default 2) at once; synced is the total
//   - offline, online: cut or restore the network to the endpoint
//   - reject, accept: make the endpoint answer status (default 500), or accept again
//   - reset: ResetStore
//   - reopen: close the client and open the same database again
//   - corrupt: close the client, drop the synchronized table and reopen
//
// # Assertion Types
//
//   - collection_count: pending, synchronized or remote holds exactly count records
//   - collection_status: every record of pending or synchronized has status
//   - synced_after_created: every synchronized record has syncedAt >= createdAt
//   - unique_ids: no id is in both pending and synchronized
//   - synchronized_order: ListSynchronized is sorted by syncedAt descending
//   - remote_batches: the endpoint answered exactly count batch requests
//   - trace_count: action appears exactly count times in the trace
//   - trace_order: actions appear in the given order
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/offline_then_online.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
