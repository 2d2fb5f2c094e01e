// Command simpleext4fs mounts a SimpleExt4 image at a directory via
// FUSE and serves it until interrupted.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hanwen-labs/simpleext4/internal/simpleext4"
	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/moby/sys/mountinfo"
)

func main() {
	log.SetFlags(log.Lmicroseconds)

	debug := flag.Bool("debug", false, "print FUSE debugging messages")
	allowOther := flag.Bool("allow-other", false, "mount with -o allowother")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s [-debug] [-allow-other] IMAGE MOUNTPOINT\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	image, _ := filepath.Abs(flag.Arg(0))
	mountPoint, _ := filepath.Abs(flag.Arg(1))

	mounted, err := mountinfo.Mounted(mountPoint)
	if err != nil {
		log.Fatalf("simpleext4fs: checking mount state of %s: %v", mountPoint, err)
	}
	if mounted {
		log.Fatalf("simpleext4fs: %s is already a mount point", mountPoint)
	}

	sec := time.Second
	options := &fs.Options{
		EntryTimeout: &sec,
		AttrTimeout:  &sec,
	}
	options.Debug = *debug
	options.AllowOther = *allowOther

	server, vol, err := simpleext4.Mount(image, mountPoint, options)
	if err != nil {
		log.Fatalf("simpleext4fs: %v", err)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Printf("simpleext4fs: unmounting %s", mountPoint)
		if err := server.Unmount(); err != nil {
			log.Printf("simpleext4fs: unmount: %v", err)
		}
	}()

	fmt.Printf("mounted %s at %s\n", image, mountPoint)
	server.Wait()

	if err := vol.Unmount(); err != nil {
		log.Fatalf("simpleext4fs: flushing image: %v", err)
	}
}
