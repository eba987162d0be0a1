package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/fanlink/internal/fan"
	"github.com/srg/fanlink/internal/testutils"
	"github.com/srg/fanlink/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test device addresses
const (
	TestDeviceAddress1 = "AA:BB:CC:DD:EE:01"
	TestDeviceAddress2 = "AA:BB:CC:DD:EE:02"
)

// closableRadio lets a FakeRadio stand in for the platform radio
type closableRadio struct {
	*testutils.FakeRadio
	closed bool
}

func (r *closableRadio) Close() error {
	r.closed = true
	return nil
}

// CommandTestSuite runs fanlink commands against a fake radio
type CommandTestSuite struct {
	suite.Suite
	Radio        *testutils.FakeRadio
	opened       []*closableRadio
	originalOpen func(*config.Config, *logrus.Logger) (Radio, error)
	noColor      bool
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalOpen = openRadio
	s.noColor = color.NoColor
	color.NoColor = true
}

func (s *CommandTestSuite) TearDownSuite() {
	openRadio = s.originalOpen
	color.NoColor = s.noColor
}

func (s *CommandTestSuite) SetupTest() {
	// Keep a developer's own config file out of the tests
	s.T().Setenv("HOME", s.T().TempDir())

	s.Radio = s.FanRadio()
	s.opened = nil
	openRadio = func(*config.Config, *logrus.Logger) (Radio, error) {
		r := &closableRadio{FakeRadio: s.Radio}
		s.opened = append(s.opened, r)
		return r, nil
	}
}

// FanRadio builds a radio with one fan controller and one anonymous peripheral
func (s *CommandTestSuite) FanRadio() *testutils.FakeRadio {
	return testutils.NewRadioBuilder().
		WithPeripheral(TestDeviceAddress1, fan.DeviceName).
		WithService(fan.ServiceUUID).
		WithCharacteristic(fan.ControlUUID, "read,write").
		WithPeripheral(TestDeviceAddress2, "").
		WithService("180a").
		WithCharacteristic("2a29", "read").
		Build()
}

// ExecuteCommand runs fanlink with args and stdin, returning stdout, stderr and the error
func (s *CommandTestSuite) ExecuteCommand(stdin string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// RadioClosed reports whether every radio opened by a command was closed
func (s *CommandTestSuite) RadioClosed() bool {
	for _, r := range s.opened {
		if !r.closed {
			return false
		}
	}
	return len(s.opened) > 0
}

// WriteConfig writes a config file and returns its path
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "config.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600))
	return path
}
