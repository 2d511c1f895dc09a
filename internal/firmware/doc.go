// Package firmware keeps the catalog of uploaded firmware artifacts.
//
// A LocalStore writes artifact bytes under a directory that the HTTP API
// serves at /uploads, and returns the public URL devices download from.
// A Repository records each upload so operators can pick a URL when
// triggering an update. Catalog ties the two together.
//
//	cat := firmware.NewCatalog(firmware.NewLocalStore(dir, baseURL), firmware.NewSQLiteRepository(db.DB))
//	fw, err := cat.Upload(ctx, "app.bin", "1.4.2", "alice", r)
//	// fw.URL == "http://host:4001/uploads/1772355600000-app.bin"
package firmware
