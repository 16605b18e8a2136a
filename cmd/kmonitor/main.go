// Command kmonitor is an interactive serial monitor: it puts the
// host terminal into raw mode and relays keystrokes to, and console
// bytes from, a running QEMU instance's emulated SBI console (QEMU's
// `-serial stdio`, the one the kernel's internal/sbi.HSM.ConsolePutchar
// writes to through an SBI ecall). Ground: smoynes-elsie's
// internal/tty.Console (term.MakeRaw/term.Restore around a raw byte
// relay) and internal/monitor (a small, focused host-side companion
// program beside the kernel, same shape as biscuit's own host tools).
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

func main() {
	qemuPath := flag.String("qemu", "qemu-system-riscv64", "QEMU binary to launch")
	image := flag.String("image", "", "disk image built by cmd/mkuimg to attach as a drive")
	board := flag.String("machine", "virt", "QEMU -machine value")
	flag.Parse()

	if *image == "" {
		log.Fatal("kmonitor: -image is required")
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		log.Fatal("kmonitor: stdin is not a terminal")
	}

	reportWindowSize(fd)

	cmd := exec.Command(*qemuPath,
		"-machine", *board,
		"-nographic",
		"-bios", "default",
		"-drive", "file="+*image+",if=none,format=raw,id=x0",
		"-device", "virtio-blk-device,drive=x0",
		"-serial", "stdio",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Fatal(err)
	}
	cmd.Stderr = os.Stderr

	prevState, err := term.MakeRaw(fd)
	if err != nil {
		log.Fatalf("kmonitor: entering raw mode: %v", err)
	}
	defer term.Restore(fd, prevState)

	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		term.Restore(fd, prevState)
		cmd.Process.Kill()
	}()

	done := make(chan struct{})
	go func() {
		io.Copy(stdin, os.Stdin)
		close(done)
	}()
	go io.Copy(os.Stdout, stdout)

	if err := cmd.Wait(); err != nil {
		term.Restore(fd, prevState)
		log.Printf("kmonitor: qemu exited: %v", err)
	}
}

// reportWindowSize logs the host terminal's current dimensions via
// the TIOCGWINSZ ioctl underlying golang.org/x/term's own raw-mode
// support; QEMU's own serial console is a plain byte stream and does
// not negotiate a window size, so this is purely diagnostic, printed
// once at startup for an operator resizing their terminal before
// connecting.
func reportWindowSize(fd int) {
	ws, err := unix.IoctlGetWinsize(fd, unix.TIOCGWINSZ)
	if err != nil {
		return
	}
	log.Printf("kmonitor: terminal is %dx%d", ws.Col, ws.Row)
}
