package main

import (
	"flag"
	"log"

	"github.com/danmuck/ual/internal/config"
)

var defaultPaths = map[string]string{
	"gateway": "cmd/uald/config.toml",
	"cli":     "cmd/ualctl/config.toml",
}

func main() {
	kind := flag.String("kind", "gateway", "config kind: gateway|cli")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing gateway config file")
	input := flag.String("input", "", "config path for validation (defaults to the per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	fallback, ok := defaultPaths[*kind]
	if !ok {
		log.Fatalf("unknown kind: %s", *kind)
	}

	if *validate {
		if *kind != "gateway" {
			log.Fatalf("validation is only defined for gateway configs")
		}
		path := *input
		if path == "" {
			path = fallback
		}
		if _, err := config.LoadGatewayConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = fallback
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
