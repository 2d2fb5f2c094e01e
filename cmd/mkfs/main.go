// Command mkfs formats a new SimpleExt4 image file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hanwen-labs/simpleext4/internal/diskfmt"
	"github.com/hanwen-labs/simpleext4/internal/mkfs"
)

func main() {
	log.SetFlags(0)

	blockSize := flag.Uint("block-size", uint(diskfmt.DefaultBlockSize), "block size in bytes")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [-block-size N] IMAGE SIZE\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	path := flag.Arg(0)
	size, err := parseSize(flag.Arg(1))
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}

	sb, err := mkfs.Make(path, size, uint32(*blockSize), uint32(os.Getuid()), uint32(os.Getgid()), uint64(time.Now().Unix()))
	if err != nil {
		log.Fatalf("mkfs: %v", err)
	}

	fmt.Printf("formatted %s: %d groups, block size %d, %d inodes\n", path, sb.Groups, sb.BlockSize, sb.InodeCount)
}

// parseSize accepts a plain byte count, or one suffixed with K/M/G
// (binary multiples).
func parseSize(s string) (uint64, error) {
	var mult uint64 = 1
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'K', 'k':
			mult = 1 << 10
			s = s[:n-1]
		case 'M', 'm':
			mult = 1 << 20
			s = s[:n-1]
		case 'G', 'g':
			mult = 1 << 30
			s = s[:n-1]
		}
	}
	var v uint64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return v * mult, nil
}
