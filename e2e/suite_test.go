// Package e2e_test runs the concrete end-to-end scenarios from spec.md §8
// as a ginkgo/gomega BDD suite, the way the teacher's own ais/test suites
// are organized: one Describe block per scenario, wired against the real
// packages rather than mocks.
package e2e_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestEndToEndScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "UUP resolution core end-to-end scenarios")
}
