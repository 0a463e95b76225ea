// Package xferwatch observes HTTP transfers transparently.
//
// A Service wraps the transports a program already uses so every request
// whose URL matches a marker (by default ".data.br" and ".wasm.br") is
// tracked: byte-level progress, throughput and completion are reported as
// records, and an aggregate "all downloads done" predicate is derived
// across any number of concurrent transfers. Callers keep using their
// clients as before; responses reach them unchanged.
//
// # Basic Usage
//
// Create a service and install it on an HTTP client:
//
//	svc, err := xferwatch.NewService(
//	    xferwatch.WithRecordFunc(func(r xferwatch.Record) {
//	        fmt.Printf("[%s] %s: %s\n", r.Key, r.Label, r.Value)
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client := svc.HTTPClient(nil)
//	resp, err := client.Get("https://cdn.example.com/Build/game.data.br")
//
//	// Poll the aggregate
//	if svc.AllDone() {
//	    fmt.Println(svc.Snapshot().Results)
//	}
//
// # Event transport
//
// The eventxfer package provides a request object that dispatches progress
// and load events. Wrap it with InstallEvents:
//
//	events := svc.InstallEvents(eventxfer.NewClient())
//	req := events.NewRequest()
//	req.Open(http.MethodGet, "https://cdn.example.com/Build/game.wasm.br")
//	err := req.Send(ctx, nil)
//
// # Size correction
//
// Some servers declare a total that does not match the bytes the transport
// counts, for example a compressed size against a decompressed stream. When
// the size oracle knows a URL, loaded bytes are scaled by
// declared/expected so percentages stay meaningful:
//
//	svc, err := xferwatch.NewService(
//	    xferwatch.WithOracleSizes(map[string]int64{".data.br": 30978273}),
//	)
package xferwatch
