package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"os"

	"github.com/sealbox/sealbox"
)

func main() {
	fmt.Println("Starting sealbox example")

	storeDir, err := os.MkdirTemp("", "sealbox_example_*")
	if err != nil {
		log.Fatalf("Failed to create store directory: %s", err)
	}
	defer os.RemoveAll(storeDir)

	sb, err := sealbox.Open(sealbox.Config{
		StorePath:     storeDir, // Directory for chunk storage
		MinimumFreeGB: 1,        // Minimum free space in GB
	})
	if err != nil {
		log.Fatalf("Failed to initialize sealbox: %s", err)
	}
	defer sb.Close()

	ctx := context.Background()

	// Upload 10 MiB of random data
	data := generateTestData(10 * 1024 * 1024)
	dataMap, err := sb.Upload(ctx, data)
	if err != nil {
		log.Fatalf("Error uploading data: %s", err)
	}
	fmt.Printf("Uploaded %d bytes as %d chunks\n", dataMap.TotalSize, len(dataMap.Chunks))

	for _, desc := range dataMap.Chunks {
		fmt.Printf("  chunk %d: %s (%d bytes)\n", desc.Index, desc.Address, desc.CipherSize)
	}

	// Download and verify
	restored, err := sb.Download(ctx, dataMap)
	if err != nil {
		log.Fatalf("Error downloading data: %s", err)
	}
	if !bytes.Equal(data, restored) {
		log.Fatal("Downloaded data does not match the original")
	}
	fmt.Printf("Downloaded %d bytes, content verified\n", len(restored))

	// Uploading the same data again is a no-op on the store
	again, err := sb.Upload(ctx, data)
	if err != nil {
		log.Fatalf("Error re-uploading data: %s", err)
	}
	fmt.Printf("Re-upload produced identical map: %v\n", again.Checksum == dataMap.Checksum)
}

func generateTestData(size int) []byte {
	data := make([]byte, size)
	rand.Read(data)
	return data
}
