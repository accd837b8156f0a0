package main

import (
	"flag"
	"log"
	"os"
	"time"

	"peer-review-api/config"
	"peer-review-api/services"

	"github.com/joho/godotenv"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep pass and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config.InitLogging()
	config.InitDB()

	sweep := services.NewSweepService(nil, nil, nil, nil)

	if *once {
		report := sweep.Run()
		log.Printf("sweep done: %+v", report)
		return
	}

	interval := 30 * time.Minute
	if raw := os.Getenv("SWEEP_INTERVAL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid SWEEP_INTERVAL %q: %v", raw, err)
		}
		interval = parsed
	}

	log.Printf("sweep runner starting, interval %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report := sweep.Run()
		log.Printf("sweep done: %+v", report)
		<-ticker.C
	}
}
