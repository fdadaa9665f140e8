// etch inspects an etch data file.
//
//	etch [flags] stats
//	etch [flags] roots
//	etch [flags] get <hash>
//	etch [flags] verify [hash]
//	etch [flags] graph [hash] > dag.dot
//
// Without a hash, verify and graph start from the newest root.
package main

import "fmt"
import "os"

import log "github.com/sirupsen/logrus"
import "github.com/spf13/pflag"
import "golang.org/x/xerrors"

import etch "github.com/Convex-Dev/convex-sub012"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string) error {
	var configPath, path, level string
	var all bool

	flagSet := pflag.NewFlagSet("etch", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file, flags override it")
	flagSet.StringVarP(&path, "file", "f", "", "data file")
	flagSet.StringVar(&level, "log-level", "", "logrus level (default from config)")
	flagSet.BoolVar(&all, "all", false, "verify: check every record in the file, not only what a root reaches")
	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: etch [flags] stats|roots|get|verify|graph [hash]\n\n")
		flagSet.PrintDefaults()
	}
	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg := etch.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = etch.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if path != "" {
		cfg.Path = path
	}
	if level != "" {
		cfg.LogLevel = level
	}
	if cfg.Path == "" {
		return xerrors.New("no data file, use --file or a config with path set")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, _ := log.ParseLevel(cfg.LogLevel)
	log.SetLevel(lvl)
	if _, err := os.Stat(cfg.Path); err != nil {
		return xerrors.Errorf("data file: %w", err)
	}

	args := flagSet.Args()
	if len(args) == 0 {
		flagSet.Usage()
		return xerrors.New("missing command")
	}

	store, err := etch.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	res := etch.NewResolver(store, cfg.CacheSize)

	switch args[0] {
	case "stats":
		s := store.Stats()
		fmt.Printf("path:        %s\n", s.Path)
		fmt.Printf("records:     %d\n", s.Records)
		fmt.Printf("log size:    %d\n", s.LogicalSize)
		fmt.Printf("file size:   %d\n", s.FileSize)
		fmt.Printf("checkpoint:  %d\n", s.CheckpointCovered)
		if r, ok := store.Root(); ok {
			fmt.Printf("root:        %s (version %d)\n", r.Hash, r.Version)
		}
		return nil

	case "roots":
		for _, r := range store.Roots() {
			fmt.Printf("%6d %s\n", r.Version, r.Hash)
		}
		return nil

	case "get":
		if len(args) != 2 {
			return xerrors.New("get needs a hash")
		}
		h, err := etch.ParseHash(args[1])
		if err != nil {
			return err
		}
		ref, ok, err := res.Get(h)
		if err != nil {
			return err
		}
		if !ok {
			return &etch.MissingDataError{Hash: h}
		}
		c, err := ref.Value(res)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %d bytes\n%s\n", ref.Status(), h, len(c.Encoding()), c)
		return nil

	case "verify":
		if all {
			return verifyAll(store)
		}
		h, err := rootOrArg(store, args)
		if err != nil {
			return err
		}
		if err = etch.Validate(res, etch.RefForHash(h)); err != nil {
			return err
		}
		log.WithField("root", h).Info("verified")
		return nil

	case "graph":
		h, err := rootOrArg(store, args)
		if err != nil {
			return err
		}
		return etch.Graph(os.Stdout, res, etch.RefForHash(h))
	}
	return xerrors.Errorf("unknown command %q", args[0])
}

func rootOrArg(store *etch.Etch, args []string) (etch.Hash, error) {
	if len(args) > 1 {
		return etch.ParseHash(args[1])
	}
	r, ok := store.Root()
	if !ok {
		return etch.Hash{}, xerrors.New("store has no root, give a hash")
	}
	return r.Hash, nil
}

// verifyAll decodes every record and checks that persisted records have all their children
func verifyAll(store *etch.Etch) error {
	n, bad := 0, 0
	err := store.Scan(func(h etch.Hash, e etch.Entry) error {
		n++
		c, err := etch.DecodeVerified(h, e.Encoding)
		if err != nil {
			bad++
			log.WithError(err).WithField("hash", h).Error("bad record")
			return nil
		}
		if e.Status < etch.StatusPersisted {
			return nil
		}
		for i := 0; i < c.RefCount(); i++ {
			child := c.Ref(i)
			if child.IsEmbedded() {
				continue
			}
			if _, ok, err := store.Read(child.Hash()); err != nil {
				return err
			} else if !ok {
				bad++
				log.WithFields(log.Fields{"hash": h, "child": child.Hash()}).Error("persisted record with a missing child")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"records": n, "bad": bad}).Info("scan complete")
	if bad > 0 {
		return xerrors.Errorf("%d bad records", bad)
	}
	return nil
}
