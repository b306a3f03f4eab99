// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build darwin || linux

package pipe

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// namePrefix starts every connection name.
const namePrefix = "fd:"

// firstExtraFile is the descriptor number of exec.Cmd.ExtraFiles[0]
// in the child.
const firstExtraFile = 3

// ErrNotPipe is returned by Dial for descriptors that are not pipes.
var ErrNotPipe = errors.New("descriptor is not a pipe")

// Server owns the read end of a pipe and, until released, the write
// end handed to the client.
type Server struct {
	mu     sync.Mutex
	reader *os.File
	writer *os.File
	name   string
}

// NewServer creates a pipe. When inheritable is true the write end
// stays open across exec at the descriptor number named by Name.
func NewServer(inheritable bool) (*Server, error) {
	reader, writer, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating pipe: %w", err)
	}
	server := &Server{reader: reader, writer: writer}

	rawConn, err := writer.SyscallConn()
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("accessing pipe descriptor: %w", err)
	}
	var controlErr error
	err = rawConn.Control(func(fd uintptr) {
		server.name = namePrefix + strconv.FormatUint(uint64(fd), 10)
		if inheritable {
			_, controlErr = unix.FcntlInt(fd, unix.F_SETFD, 0)
		}
	})
	if err == nil {
		err = controlErr
	}
	if err != nil {
		server.Close()
		return nil, fmt.Errorf("making pipe inheritable: %w", err)
	}
	return server, nil
}

// Name returns the connection name of the write end in this process.
func (server *Server) Name() string { return server.name }

// Reader returns the read end.
func (server *Server) Reader() *os.File { return server.reader }

// ClientFile returns the write end for exec.Cmd.ExtraFiles, or nil
// once released.
func (server *Server) ClientFile() *os.File {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.writer
}

// ReleaseClientHandle closes the server's copy of the write end. Call
// it once the client holds its own copy.
func (server *Server) ReleaseClientHandle() error {
	server.mu.Lock()
	defer server.mu.Unlock()
	if server.writer == nil {
		return nil
	}
	err := server.writer.Close()
	server.writer = nil
	return err
}

// CloseReader closes the read end, unblocking a pending Read.
func (server *Server) CloseReader() error {
	return server.reader.Close()
}

// Close releases both ends.
func (server *Server) Close() error {
	releaseErr := server.ReleaseClientHandle()
	closeErr := server.reader.Close()
	if errors.Is(closeErr, os.ErrClosed) {
		closeErr = nil
	}
	return errors.Join(releaseErr, closeErr)
}

// ChildName returns the connection name under which a child sees
// exec.Cmd.ExtraFiles[index].
func ChildName(index int) string {
	return namePrefix + strconv.Itoa(firstExtraFile+index)
}

// Dial opens the write end named by name. The descriptor is
// duplicated close-on-exec, so the caller owns the returned file and
// the named descriptor stays untouched.
func Dial(name string) (*os.File, error) {
	number, ok := strings.CutPrefix(name, namePrefix)
	if !ok {
		return nil, fmt.Errorf("pipe name %q does not start with %q", name, namePrefix)
	}
	fd, err := strconv.Atoi(number)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("pipe name %q: invalid descriptor number", name)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		return nil, fmt.Errorf("pipe %s: %w", name, err)
	}
	if uint32(stat.Mode)&unix.S_IFMT != unix.S_IFIFO {
		return nil, fmt.Errorf("pipe %s: %w", name, ErrNotPipe)
	}

	duplicate, err := unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("duplicating pipe %s: %w", name, err)
	}
	return os.NewFile(uintptr(duplicate), name), nil
}
