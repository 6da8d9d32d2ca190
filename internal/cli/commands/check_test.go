package commands

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/weft/internal/script"
)

func TestNewCheckCommand(t *testing.T) {
	cmd := NewCheckCommand()

	assert.Equal(t, "check", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	flags := []string{"severity", "strict"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
}

func TestLinkIssuesFlattensJoinedTargets(t *testing.T) {
	err := errors.Join(
		&script.UnknownTargetError{Script: "a", Target: "ghost", Line: 3, Column: 10},
		&script.UnknownTargetError{Script: "b.c", Target: "phantom", Line: 7, Column: 1},
	)

	issues := linkIssues(err)
	require.Len(t, issues, 2)

	assert.Equal(t, "error", issues[0].Severity)
	assert.Equal(t, "target", issues[0].Code)
	assert.Equal(t, "a", issues[0].Location)
	assert.Equal(t, 3, issues[0].Line)
	assert.Contains(t, issues[0].Message, `"ghost"`)

	assert.Equal(t, "b.c", issues[1].Location)
	assert.Contains(t, issues[1].Message, `"phantom"`)
}

func TestLinkIssuesWrapsOtherErrors(t *testing.T) {
	issues := linkIssues(fmt.Errorf("duplicate script name %q", "x"))
	require.Len(t, issues, 1)
	assert.Equal(t, "link", issues[0].Code)
	assert.Contains(t, issues[0].Message, "duplicate")
}

func TestMetaIssues(t *testing.T) {
	scripts := []*script.Script{
		{Name: "documented", FilePath: "a.star", Meta: script.Meta{Description: "does things"}},
		{Name: "bare", FilePath: "b.star"},
	}

	issues := metaIssues(scripts)
	require.Len(t, issues, 1)
	assert.Equal(t, "warning", issues[0].Severity)
	assert.Equal(t, "description", issues[0].Code)
	assert.Equal(t, "b.star", issues[0].Location)
	assert.Contains(t, issues[0].Message, `"bare"`)
}
