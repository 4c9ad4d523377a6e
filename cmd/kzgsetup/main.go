// Command kzgsetup generates a new KZG trusted setup for LVMT's crypto
// params (package kzgparams) from an operator-entered seed and saves it
// to a pp/ directory, the ceremony step described in SPEC_FULL.md §4.1.
//
// Usage: kzgsetup <output-dir> [fanout]
package main

import (
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"syscall"

	"github.com/lvmt-go/lvmt/kzgparams"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/term"
)

const minSeedLen = 20

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Println("Usage: kzgsetup <output-dir> [fanout]")
		os.Exit(1)
	}
	dir := os.Args[1]
	fanout := kzgparams.DefaultFanout
	if len(os.Args) == 3 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil {
			fmt.Printf("invalid fanout: %v\n", err)
			os.Exit(1)
		}
		fanout = n
	}

	fmt.Printf("generating new trusted KZG setup in '%s', fanout=%d\n", dir, fanout)
	seed := readSeed()
	defer wipe(seed)

	h := blake2b.Sum256(seed)
	wipe(seed)
	// re-hash a random number of times so the transcript does not
	// directly expose the operator's typed seed, matching the
	// ceremony hygiene of the teacher's kzg_setup.go.
	for i := 0; i < 10+rand.Intn(90); i++ {
		h = blake2b.Sum256(h[:])
	}

	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().SetBytes(h[:])
	h = [32]byte{}

	p, err := kzgparams.GenerateAndSave(suite, dir, fanout, secret)
	secret.Zero()
	if err != nil {
		fmt.Printf("setup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("success: wrote %d-point Lagrange basis to '%s' (point size %d bytes)\n", p.N, dir, p.PointSize())
}

func readSeed() []byte {
	for {
		fmt.Printf("enter seed (>= %d symbols) and press ENTER (CTRL-C to exit) > ", minSeedLen)
		seed, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			fmt.Printf("\nerror: %v\n", err)
			continue
		}
		if len(seed) < minSeedLen {
			fmt.Printf("\nerror: seed too short\n")
			continue
		}
		fmt.Println()
		return seed
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
