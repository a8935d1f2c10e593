package main

import (
	"flag"
	"log"

	"github.com/danmuck/armlink/internal/config"
)

func main() {
	kind := flag.String("kind", "client", "config kind: client|bench")
	output := flag.String("output", "cmd/armctl/config.toml", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "cmd/armctl/config.toml", "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if _, err := config.LoadClientConfig(*input); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated config at %s", *input)
		return
	}

	if _, err := config.CheckTemplate(*kind); err != nil {
		log.Fatal(err)
	}
	if err := config.WriteTemplate(*output, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, *output)
}
