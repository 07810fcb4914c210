package main

import (
	"flag"
	"log"

	"storyweaver/config"
)

func main() {
	cfgPath := flag.String("config", "config.yml", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := runServer(cfg); err != nil {
		log.Fatal(err)
	}
}
