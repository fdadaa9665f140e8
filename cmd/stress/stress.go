package main

import "bytes"
import "crypto/rc4"
import "encoding/binary"
import "math"
import "os"
import "path/filepath"
import "runtime"
import "runtime/pprof"
import "time"

import log "github.com/sirupsen/logrus"
import flag "github.com/spf13/pflag"
import "golang.org/x/sync/errgroup"

import etch "github.com/Convex-Dev/convex-sub012"

const keysize uint64 = 64    // in bytes
const valuesize uint64 = 512 // in bytes

var stepsize = flag.Uint64("stepsize", 10, "Every persist will include this much data in MB")
var totalsize = flag.Uint64("totalsize", 500, "Total this much data will be written in MB ( use 0 for infinite )")
var db_directory = flag.String("db_directory", "/tmp", "store will be created in this path, will be cleared on exit")
var memory = flag.Bool("memory", false, "use the memory store instead of an etch file")
var workers = flag.Int("workers", runtime.NumCPU(), "verification goroutines")
var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var loglevel = flag.String("log-level", "info", "logrus level")

var step uint64
var keys_written uint64

func main() {
	flag.Parse()
	if level, err := log.ParseLevel(*loglevel); err != nil {
		log.Fatalf("log level: %s", err)
	} else {
		log.SetLevel(level)
	}

	log.Infof("Etch stress tester")
	log.Infof("NOTE: Do not use rotational media")

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if *stepsize < 1 {
		*stepsize = 1
	}
	if *totalsize == 0 {
		*totalsize = math.MaxUint64
	}
	if *stepsize > 512 {
		*stepsize = 512
	}
	if *stepsize > *totalsize {
		*stepsize = *totalsize
	}
	if *workers < 1 {
		*workers = 1
	}

	log.Infof("Total Size (to be written): %d MB", *totalsize)
	log.Infof("Persist size: %d MB", *stepsize)

	var store etch.Store
	var file *etch.Etch
	if *memory {
		store = etch.NewMemStore()
		log.Infof("Using memory backend")
	} else {
		path := filepath.Join(*db_directory, "etch_stress.db")
		defer os.Remove(path)
		defer os.Remove(path + ".idx")
		cfg := etch.DefaultConfig()
		cfg.Path = path
		f, err := etch.Open(cfg)
		if err != nil {
			log.Fatalf("stress store creation err %s", err)
		}
		store, file = f, f
		log.Infof("Using etch backend, path: %s", path)
	}
	defer store.Close()

	res := etch.NewResolver(store, 0)
	m := etch.EmptyMap
	for i := uint64(0); i < *totalsize / *stepsize; i++ {
		log.Infof("Running step %d    %f completed total keys %d", i, float64(i*100)/float64(*totalsize / *stepsize), keys_written)
		m = RunStep(res, file, m)
	}
	log.Infof("Completed step %d    %f completed total keys %d", (*totalsize / *stepsize), float32(100), keys_written)
}

// each step consists of generating pseudorandom data, which is first persisted and then verified after each step
func RunStep(res *etch.Resolver, file *etch.Etch, m *etch.Map) *etch.Map {
	values_count := (*stepsize * 1024 * 1024 / valuesize) + 1

	key_buf := make([]byte, values_count*keysize)
	value_buf := make([]byte, values_count*valuesize)

	var cryptokey, cryptovalue [9]byte
	cryptokey[0] = 1
	binary.LittleEndian.PutUint64(cryptokey[1:], step)
	binary.LittleEndian.PutUint64(cryptovalue[1:], step)
	step++

	keycipher, _ := rc4.NewCipher(cryptokey[:])
	valuecipher, _ := rc4.NewCipher(cryptovalue[:])
	keycipher.XORKeyStream(key_buf[:], key_buf[:])
	valuecipher.XORKeyStream(value_buf[:], value_buf[:])

	var err error
	for i := uint64(0); i < values_count; i++ {
		m, err = m.Assoc(res, etch.NewBlob(key_buf[i*keysize:(i+1)*keysize]), etch.NewBlob(value_buf[i*valuesize:(i+1)*valuesize]))
		if err != nil {
			log.Fatalf("assoc err %s", err)
		}
		keys_written++
	}

	start := time.Now()
	novel := 0
	root, err := etch.Persist(res, etch.NewRef(m), func(*etch.Ref) { novel++ })
	if err != nil {
		log.Fatalf("persist err %s", err)
	}
	if file != nil {
		if _, err = file.SetRoot(root.Hash()); err != nil {
			log.Fatalf("set root err %s", err)
		}
		if err = file.Flush(); err != nil {
			log.Fatalf("flush err %s", err)
		}
		log.WithFields(log.Fields{"records": file.Stats().Records, "size": file.Stats().LogicalSize}).Debug("store")
	}
	log.WithFields(log.Fields{"cells": novel, "took": time.Since(start)}).Info("persisted")

	// now load the map again from storage with a cold cache and read everything back
	fresh := etch.NewResolver(res.Store(), 0)
	c, err := etch.RefForHash(root.Hash()).Value(fresh)
	if err != nil {
		log.Fatalf("loading root err %s", err)
	}
	read_map := c.(*etch.Map)

	var g errgroup.Group
	per := (values_count + uint64(*workers) - 1) / uint64(*workers)
	for w := uint64(0); w < values_count; w += per {
		lo, hi := w, w+per
		if hi > values_count {
			hi = values_count
		}
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				value, ok, err := read_map.Get(fresh, etch.NewBlob(key_buf[i*keysize:(i+1)*keysize]))
				if err != nil {
					return err
				}
				if !ok {
					log.Fatalf("key %d missing", i)
				}
				got, err := value.(*etch.Blob).Bytes(fresh)
				if err != nil {
					return err
				}
				if !bytes.Equal(got, value_buf[i*valuesize:(i+1)*valuesize]) { // value error
					log.Fatalf("value mismatched")
				}
			}
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		log.Fatalf("err occured while verifying map err %s", err)
	}
	return m
}
