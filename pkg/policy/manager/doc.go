// Package manager loads dialog policy rule sets from disk and keeps the live
// generation current while requests are being served.
//
// # Core Components
//
// Loader parses the product index file and every domain policy file it
// references into an immutable model.RuleSet. It never touches live state.
//
// Store holds two generation slots with a reader count per slot. Readers
// Acquire the active generation and Release it when their resolve call is
// done. Reload builds the new generation first, then installs it into the
// inactive slot and flips the active index, refusing with
// ErrGenerationInUse while readers still hold the inactive slot.
//
// Manager is the reload supervisor. It performs the fatal initial load and
// registers a level-triggered callback with a filewatch.Watcher so that a
// refused or failed reload is retried on the next change check.
//
// # Basic Usage
//
//	w := filewatch.NewPollWatcher(filewatch.DefaultConfig(), logger)
//	defer w.Close()
//
//	mgr, err := manager.New(&manager.Config{ProductsFile: "conf/products.json"}, w, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := mgr.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Close()
//
//	snap, err := mgr.Store().Acquire()
//	if err != nil {
//	    return err
//	}
//	defer mgr.Store().Release(snap)
//
// # Configuration Files
//
// The product index maps products to domains:
//
//	{"default": {"billing": {"score": 10, "conf_path": "billing.json"}}}
//
// Relative conf_path values are resolved against the index file's
// directory. Each domain file is a JSON array of policies and is checked
// against an embedded JSON schema before decoding.
//
// # Error Handling
//
// LoadError: the index or a domain file cannot be read.
//
// ParseError: malformed JSON or a document of the wrong shape.
//
// ValidationError: a policy or domain entry fails the schema.
//
// In lenient mode (the default) invalid domains and policies are skipped
// with a warning and only an unreadable or malformed index fails the load.
// In strict mode every problem fails the load.
package manager
