package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/srg/fanlink/internal/testutils"
)

func (s *CommandsTestSuite) TestBridge() {
	// GOAL: Verify the bridge serves the line protocol on a PTY and stops on cancellation
	//
	// TEST SCENARIO: bridge with symlink → client sends "connect" and "status" with CR line endings
	//                → two CRLF-terminated JSON answers → cancel → symlink removed, radio closed

	link := filepath.Join(s.T().TempDir(), "fan")
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"bridge", "--symlink", link})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	if !testutils.Eventually(func() bool {
		_, err := os.Lstat(link)
		return err == nil
	}, 2*time.Second) {
		cancel()
		if err := <-done; err != nil && strings.Contains(err.Error(), "failed to create PTY") {
			s.T().Skipf("PTY not available: %v", err)
		}
		s.FailNow("bridge MUST create the symlink")
	}

	client, err := os.OpenFile(link, os.O_RDWR|syscall.O_NOCTTY, 0)
	s.Require().NoError(err)
	defer client.Close()

	_, err = client.Write([]byte("connect " + TestDeviceAddress1 + "\rstatus\r"))
	s.Require().NoError(err)

	type answer struct {
		lines []string
		err   error
	}
	answers := make(chan answer, 1)
	go func() {
		r := bufio.NewReader(client)
		var lines []string
		for len(lines) < 2 {
			line, err := r.ReadString('\n')
			if err != nil {
				answers <- answer{lines, err}
				return
			}
			lines = append(lines, line)
		}
		answers <- answer{lines: lines}
	}()

	var got answer
	select {
	case got = <-answers:
	case <-time.After(5 * time.Second):
		s.FailNow("bridge MUST answer both commands")
	}
	s.Require().NoError(got.err)
	s.Require().Len(got.lines, 2)
	for _, line := range got.lines {
		s.Assert().True(strings.HasSuffix(line, "\r\n"), "bridge answers MUST end with CRLF")
	}
	ja := testutils.NewJSONAsserter(s.T())
	ja.Assert(got.lines[0], `{"ok":true,"result":true}`)
	ja.Assert(got.lines[1], `{"ok":true,"result":{"state":"ACTIVE","peripheral_id":"AA:BB:CC:DD:EE:01"}}`)

	cancel()
	select {
	case err := <-done:
		s.Assert().ErrorIs(err, context.Canceled)
	case <-time.After(5 * time.Second):
		s.FailNow("bridge MUST stop when cancelled")
	}

	s.Assert().Contains(stdout.String(), "Bridge running on ")
	s.Assert().Contains(stdout.String(), "Symlink: "+link)
	_, err = os.Lstat(link)
	s.Assert().True(os.IsNotExist(err), "symlink MUST be removed when the bridge stops")
	s.Assert().True(s.RadioClosed())
	s.Assert().True(s.Radio.LastGatt().Released(), "stopping the bridge MUST close the session")
}
