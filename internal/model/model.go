// Package model defines the identities shared by every forkrunner component:
// the worker pools that execute a suite concurrently and the test cases they run.
package model

import "fmt"

// Pool is one independent group of workers (typically a set of devices).
//
// Pools are compared by identity: components key their maps on *Pool, so two
// Pool values with the same name are still distinct pools.
type Pool struct {
	Name    string
	Devices []string
}

// NewPool creates a pool with the given name and device serials.
func NewPool(name string, devices ...string) *Pool {
	return &Pool{Name: name, Devices: devices}
}

// String returns the pool name, or "<nil>" for a nil pool.
func (p *Pool) String() string {
	if p == nil {
		return "<nil>"
	}
	return p.Name
}

// TestCase identifies a single logical test. It is a comparable value and
// stays equal across every retry of the same test.
type TestCase struct {
	Class  string `yaml:"class" json:"class"`
	Method string `yaml:"method" json:"method"`
}

// NewTestCase creates a TestCase.
func NewTestCase(class, method string) TestCase {
	return TestCase{Class: class, Method: method}
}

// String returns "Class#method".
func (tc TestCase) String() string {
	return fmt.Sprintf("%s#%s", tc.Class, tc.Method)
}
