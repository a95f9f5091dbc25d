//go:build mage

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"golang.org/x/term"
)

var (
	Go = "go"

	binDir    = "bin"
	holderBin = filepath.Join(binDir, "ssi-holder")
)

// Build compiles the holder CLI into bin/.
func Build() error {
	fmt.Println("Building...")
	return sh.Run(Go, "build", "-tags", "jwx_es256k", "-o", holderBin, "./cmd/holder")
}

// Clean deletes any build artifacts.
func Clean() {
	fmt.Println("Cleaning...")
	_ = os.RemoveAll(binDir)
	_ = os.Remove("coverage.out")
}

// Answer builds the CLI and answers the authorization request in $REQUEST_URL with the configured wallet.
func Answer() error {
	mg.Deps(Build)
	url := os.Getenv("REQUEST_URL")
	if url == "" {
		return fmt.Errorf("REQUEST_URL is not set")
	}
	return sh.RunV(holderBin, "--request-url", url)
}

// Test runs unit tests without coverage.
// The mage `-v` option will trigger a verbose output of the test
func Test() error {
	return runTests()
}

// CITest runs unit tests with coverage as a part of CI.
func CITest() error {
	return runTests("-covermode=atomic", "-coverprofile=coverage.out")
}

func runTests(extraTestArgs ...string) error {
	args := []string{"test"}
	if mg.Verbose() {
		args = append(args, "-v")
	}
	args = append(args, "-tags=jwx_es256k", "-race")
	args = append(args, extraTestArgs...)
	args = append(args, "./...")
	testEnv := map[string]string{
		"CGO_ENABLED": "1",
		"GO111MODULE": "on",
	}
	fmt.Printf("%+v\n", args)
	_, err := sh.Exec(testEnv, colorizeTestStdout(), os.Stderr, Go, args...)
	return err
}

func colorizeTestStdout() io.Writer {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return os.Stdout
	}
	writer := newRegexpWriter(os.Stdout, `PASS.*`, "\033[32m$0\033[0m")
	return newRegexpWriter(writer, `FAIL.*`, "\033[31m$0\033[0m")
}

type regexpWriter struct {
	inner io.Writer
	re    *regexp.Regexp
	repl  []byte
}

func newRegexpWriter(inner io.Writer, re string, repl string) io.Writer {
	return &regexpWriter{inner, regexp.MustCompile(re), []byte(repl)}
}

func (w *regexpWriter) Write(p []byte) (int, error) {
	r := w.re.ReplaceAll(p, w.repl)
	n, err := w.inner.Write(r)
	if n > len(r) {
		n = len(r)
	}
	return n, err
}

// CBT runs clean; build; test.
func CBT() error {
	Clean()
	if err := Build(); err != nil {
		return err
	}
	return Test()
}
