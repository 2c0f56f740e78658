// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("📦 stocksync - Offline-First Inventory Sync")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Println("stocksync keeps an inventory usable without a network: every edit is written")
	fmt.Println("to a local SQLite store and a durable pending queue, then replayed in order")
	fmt.Println("against the remote store once the device is back online.")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 HTTP Server Example (examples/nethttp_server/)")
	fmt.Println("   The reference remote store: Postgres-backed records over JSON/HTTP")
	fmt.Println("   Features: JWT auth, idempotent inserts, partial updates, soft deletes")
	fmt.Println("   Run: cd examples/nethttp_server && go run .")
	fmt.Println()

	fmt.Println("2. 📱 Mobile Flow Simulator (examples/mobile_flow/)")
	fmt.Println("   Simulated devices editing offline, reconnecting and draining their queues")
	fmt.Println("   Features: offline/online cycles, partial failures, multiple devices")
	fmt.Println("   Run: cd examples/mobile_flow && go run . --scenario all")
	fmt.Println()
}
