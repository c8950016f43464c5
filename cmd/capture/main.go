package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cantrace/internal/api"
	"cantrace/internal/catalog"
	"cantrace/internal/config"
	"cantrace/internal/database"
	"cantrace/internal/database/clickhouse"
	"cantrace/internal/database/influxdb"
	"cantrace/internal/engine"
	"cantrace/internal/export"
	"cantrace/internal/stats"
	"cantrace/internal/transport"
)

func main() {
	// Command line flag for config file
	envFile := flag.String("env", ".env", "Path to .env configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting CAN capture...")
	log.Printf("Transport: %s", cfg.Transport)
	log.Printf("Catalog: %s", cfg.CatalogPath)

	// Load message catalog
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}
	log.Printf("Loaded %d message definitions", cat.Len())

	// Build transport
	tr, err := buildTransport(cfg)
	if err != nil {
		log.Fatalf("Failed to build transport: %v", err)
	}

	// Create ingestion engine
	eng := engine.New(engine.Options{
		FlushInterval:    time.Duration(cfg.FlushIntervalMs) * time.Millisecond,
		SweepInterval:    time.Duration(cfg.SweepIntervalMs) * time.Millisecond,
		StaleTimeout:     time.Duration(cfg.StaleTimeoutMs) * time.Millisecond,
		RolloverCooldown: time.Duration(cfg.RolloverCooldownMs) * time.Millisecond,
		MaxFrames:        cfg.MaxFrames,
	})

	// Rollover segments spool to trace files
	eng.SetRolloverSink(&export.Spool{
		Dir:          cfg.SpoolDir,
		SessionStart: eng.SessionStart(),
	})

	// Optional database sinks, closed together on shutdown
	var sinks []database.Writer
	var statsWriter *clickhouse.StatsWriter
	if cfg.ClickHouseHost != "" {
		chConfig := clickhouse.Config{
			Host:       cfg.ClickHouseHost,
			Port:       cfg.ClickHousePort,
			Database:   cfg.ClickHouseDatabase,
			Username:   cfg.ClickHouseUsername,
			Password:   cfg.ClickHousePassword,
			Table:      cfg.ClickHouseTable,
			StatsTable: cfg.ClickHouseStatsTable,
		}

		chWriter, err := clickhouse.New(chConfig, cfg.BatchSize, nil)
		if err != nil {
			log.Fatalf("Failed to create ClickHouse writer: %v", err)
		}
		chWriter.Start()
		eng.AddFrameSink(chWriter)
		sinks = append(sinks, chWriter)
		log.Printf("ClickHouse sink: %s:%d/%s.%s", cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDatabase, cfg.ClickHouseTable)

		if err := clickhouse.CreateStatsTable(chWriter.GetConn(), cfg.ClickHouseStatsTable); err != nil {
			log.Fatalf("Failed to create statistics table: %v", err)
		}
		statsWriter = clickhouse.NewStatsWriter(chWriter.GetConn(), cfg.ClickHouseStatsTable, cfg.BatchSize/10, nil)
		defer statsWriter.Close()
		statsWriter.Start()
	}

	// Optional InfluxDB decoded-signal sink
	var influxWriter *influxdb.Writer
	if cfg.InfluxDBToken != "" {
		influxWriter, err = influxdb.New(influxdb.Config{
			URL:      cfg.InfluxDBURL,
			Token:    cfg.InfluxDBToken,
			Database: cfg.InfluxDBDatabase,
		}, cat, cfg.BatchSize, nil)
		if err != nil {
			log.Fatalf("Failed to create InfluxDB writer: %v", err)
		}
		influxWriter.Start()
		eng.AddFrameSink(influxWriter)
		sinks = append(sinks, influxWriter)
		log.Printf("InfluxDB sink: %s/%s", cfg.InfluxDBURL, cfg.InfluxDBDatabase)
	}

	// Create and start statistics collector
	collector := stats.NewCollector(eng, time.Duration(cfg.StatsInterval)*time.Second)
	collector.Start()
	defer collector.Stop()

	// Optional HTTP API over the live session
	var server *api.Server
	if cfg.APIPort > 0 {
		server = api.NewServer(api.ServerConfig{Port: cfg.APIPort}, eng, cat, collector, influxWriter, nil)
		eng.AddFrameSink(server.LiveSink())
		go func() {
			if err := server.Start(); err != nil {
				log.Printf("API server error: %v", err)
			}
		}()
	}

	// Start the engine and attach the transport
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng.Start(ctx)
	if err := eng.Attach(ctx, tr, cfg.SourceIDHex); err != nil {
		log.Fatalf("Failed to attach transport: %v", err)
	}

	log.Println("Capture started successfully. Press Ctrl+C to stop.")

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Statistics publishing loop
	go func() {
		for stat := range collector.GetStatsChannel() {
			if statsWriter != nil {
				statsWriter.Write(stat)
			}
			log.Printf("Session stats: frames=%d rate=%.1f/s live_ids=%d log=%d rollovers=%d state=%s",
				stat.TotalFrames, stat.FramesPerSecond, stat.LiveIDs, stat.LogSize, stat.Rollovers, stat.State)
		}
	}()

	// Wait for termination signal
	<-sigChan
	log.Println("\nShutting down...")
	cancel()

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
	}

	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			log.Printf("Sink close error: %v", err)
		}
	}

	log.Printf("Final statistics: %d frames captured, %d lines dropped, %d rollovers",
		eng.TotalFrames(), eng.DroppedLines(), eng.Rollovers())
}

// buildTransport selects the physical link from configuration.
func buildTransport(cfg *config.Config) (transport.Adapter, error) {
	switch cfg.Transport {
	case "serial":
		return transport.NewSerial(cfg.SerialDevice, cfg.SerialBaud), nil
	case "wireless":
		return transport.NewWireless(cfg.WirelessAddr), nil
	case "bridge":
		return transport.NewHostBridge(cfg.BridgeSocket), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
