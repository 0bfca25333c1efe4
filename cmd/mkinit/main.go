// Command mkinit patches a flat binary's init header in place: the
// first 24 bytes are overwritten with the image's magic, virtual start
// address, and entry point, so the kernel's bootstrap loader can
// validate and map it without any accompanying metadata file.
package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"os"
	"strconv"
)

// initMagic is "<limine>" read as a little-endian u64, matching
// process.ParseHeader's expectation.
const initMagic uint64 = 0x3E656E696D696C3C

const headerSize = 24

func usage(me string) {
	fmt.Printf("%s <module-file> <image-start-hex> <entry-point-hex>\n\n"+
		"Overwrite the first %d bytes of <module-file> with the InitHeader\n"+
		"(magic, image_start, entry_point) the kernel's bootstrap loader reads.\n", me, headerSize)
	os.Exit(1)
}

func main() {
	if len(os.Args) != 4 {
		usage(os.Args[0])
	}

	path := os.Args[1]

	imageStart, err := parseAddr(os.Args[2])
	if err != nil {
		log.Fatal(err)
	}
	entryPoint, err := parseAddr(os.Args[3])
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		log.Fatal(err)
	}
	if info.Size() < headerSize {
		log.Fatalf("%s is %d bytes, too small to hold a %d-byte header", path, info.Size(), headerSize)
	}

	var header [headerSize]byte
	binary.LittleEndian.PutUint64(header[0:8], initMagic)
	binary.LittleEndian.PutUint64(header[8:16], imageStart)
	binary.LittleEndian.PutUint64(header[16:24], entryPoint)

	if _, err := f.WriteAt(header[:], 0); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("patched %s: image_start=0x%x entry_point=0x%x\n", path, imageStart, entryPoint)
}

// parseAddr accepts both decimal and 0x-prefixed hexadecimal, matching
// C's strtoul with base 0.
func parseAddr(s string) (uint64, error) {
	a, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return a, nil
}
