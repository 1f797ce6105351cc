// Package client runs one authorized session against an engine.Engine.
//
// A Session owns an engine handle and a single receive loop. The loop polls
// the engine, decodes each event and routes it, one at a time, in arrival
// order:
//
//  1. an active hijack for the event type receives it exclusively;
//  2. authorization state updates drive the auth.Machine;
//  3. errors fail their correlated query, re-prompt for a rejected code or
//     password, fail readiness on an invalid bot token, or reach the error
//     callback;
//  4. correlated events resolve their query; tagged events and errors whose
//     query already timed out are dropped;
//  5. file updates resolve a pending download once a local path is present;
//  6. clearing the my_id option signs the session out and releases the handle;
//  7. everything else reaches the update callback.
//
// Update, error and hijack callbacks run on the receive loop. They must
// return promptly and must not wait on Query, which needs the loop to make
// progress; start a goroutine for follow-up calls.
//
// Example:
//
//	sess, err := client.New(eng,
//	    client.WithParameters(auth.Parameters{APIID: id, APIHash: hash, DatabaseDir: "db", FilesDir: "files"}),
//	    client.WithInputProvider(terminal.New()),
//	)
//	if err != nil { log.Fatal(err) }
//	defer sess.Close()
//	if err := sess.WaitReady(ctx); err != nil { log.Fatal(err) }
//	me, err := sess.Query(ctx, td.Object{"@type": "getMe"})
package client
