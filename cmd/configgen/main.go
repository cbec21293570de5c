package main

import (
	"flag"
	"log"

	"github.com/danmuck/feedctl/internal/config"
)

func main() {
	kind := flag.String("kind", "feed", "config kind: feed|service")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing feed config file")
	input := flag.String("input", "", "config path for validation (defaults to cmd/feedctl/feed.toml)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		if *kind != "feed" {
			log.Fatalf("validation supports kind=feed only, got %s", *kind)
		}
		path := *input
		if path == "" {
			path = "cmd/feedctl/feed.toml"
		}
		if _, err := config.LoadFeedConfig(path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		switch *kind {
		case "feed":
			target = "cmd/feedctl/feed.toml"
		case "service":
			target = "cmd/feedctl/config.toml"
		default:
			log.Fatalf("unknown kind: %s", *kind)
		}
	}

	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}
