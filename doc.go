// Package ziptoc lists and extracts entries of ZIP archives held in remote
// storage without reading whole archives.
//
// Indexing an archive parses its central directory once and stores a
// listing next to it. The listing carries the entry tree and a copy of the
// archive bytes the parse touched. Later requests reparse the central
// directory from that copy and read only entry content from storage.
//
// # Quick Start
//
// Index an archive and read one of its files:
//
//	backend, _ := file.New("/srv/archives")
//	store, _ := disk.New("/srv/listings")
//	svc, err := ziptoc.New(backend, store, ziptoc.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := svc.Index(ctx, "records/1/data.zip"); err != nil {
//	    return err
//	}
//	x, err := svc.Extract(ctx, "records/1/data.zip", "data/readme.txt")
//	if err != nil {
//	    return err
//	}
//	defer x.Close()
//	_, err = io.Copy(w, x)
//
// Extracting a directory streams a new archive holding its files.
//
// # Errors
//
// Indexing is best effort: failures are logged and the archive stays
// unindexed until the next attempt. Lookups report [ErrNotFound] for a
// missing listing or path, and [ErrIO] when storage fails mid-request.
package ziptoc
