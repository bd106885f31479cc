package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/HondouKoSuke/ZeroTierOne/types/key"
	"github.com/LukaGiorgadze/gonull"
)

type Config struct {
	PrivateKey key.NodePrivate

	// Bound at startup when set; otherwise bind interactively.
	BindAddr gonull.Nullable[netip.AddrPort]

	// Default peer cache path for save/load.
	StorePath gonull.Nullable[string]
}

func loadConfig() Config {
	if *configPath == "" {
		return newConfig()
	}

	b, err := os.ReadFile(*configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return writeNewConfig()
	case err != nil:
		log.Fatal(err)
		panic("unreachable")
	default:
		var cfg Config
		if err := json.Unmarshal(b, &cfg); err != nil {
			log.Fatalf("ztnode: config: %v", err)
		}
		return cfg
	}
}

func writeNewConfig() Config {
	if err := os.MkdirAll(filepath.Dir(*configPath), 0777); err != nil {
		log.Fatal(err)
	}
	cfg := newConfig()
	b, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile(*configPath, b, 0600); err != nil {
		log.Fatal(err)
	}
	log.Printf("ztnode: wrote fresh config to %s", *configPath)
	return cfg
}

func newConfig() Config {
	return Config{PrivateKey: key.NewNode()}
}
