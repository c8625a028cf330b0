//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds bbw and bbwview into bin/.
func (Build) All() error {
	mg.Deps(Build.CLI, Build.Viewer)
	return nil
}

// Builds the bbw command line tool.
func (Build) CLI() error {
	return goBuild("bbw")
}

// Builds the bbwview OpenGL viewer. Needs SDL2 development headers.
func (Build) Viewer() error {
	return goBuild("bbwview")
}

func goBuild(name string) error {
	if err := os.MkdirAll("bin", 0755); err != nil {
		return err
	}
	fmt.Printf("Building %s...\n", name)
	_, err := executeCmd("go", withArgs("build", "-trimpath", "-o", "bin/"+name, "./cmd/"+name), withStream())
	return err
}

// Removes build output.
func Clean() error {
	fmt.Println("Cleaning bin/...")
	return os.RemoveAll("bin")
}
