// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package w25x_test

import (
	"fmt"
	"log"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/GermanBionicSystems/actuators/w25x"
)

func Example() {
	// Make sure periph is initialized.
	if _, err := host.Init(); err != nil {
		log.Fatal(err)
	}

	// Use spireg SPI port registry to find the first available SPI bus.
	p, err := spireg.Open("")
	if err != nil {
		log.Fatal(err)
	}
	defer p.Close()

	d, err := w25x.New(p, nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s: %d bytes\n", d, d.Size())

	// Rewrite the first sector.
	if err := d.Erase(0, 1); err != nil {
		log.Fatal(err)
	}
	if err := d.WriteAt(0, []byte("hello")); err != nil {
		log.Fatal(err)
	}
	b := make([]byte, 5)
	if err := d.ReadAt(0, b); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", b)
}
