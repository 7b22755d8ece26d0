// Package client is the collaborator-facing surface of the sync core.
//
// A Client owns the store connector, the submission factory and the sync
// engine for one local database, and recovers the store once on open:
//
//	c, err := client.Open(ctx, store.Path(dir, ""), remote.NewHTTPClient(endpoint))
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	sub, err := c.Create(ctx, record.RawInput{Text: "north field, row 4"})
//	res, err := c.Sync(ctx)
//
// A Watcher turns a connectivity signal into Sync calls on every
// offline to online edge. Poll produces such a signal from a Pinger.
package client
