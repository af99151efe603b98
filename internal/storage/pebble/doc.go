// Package pebblestore is the durable key/value layer under the embedded bus
// log and the pebble delivery ledger: a thin Pebble wrapper with an fsync
// policy, prefix scans, and traffic counters.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dir,
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	for k, v := range db.ScanPrefix([]byte("ledger/orders/")) {
//	    ...
//	}
package pebblestore
