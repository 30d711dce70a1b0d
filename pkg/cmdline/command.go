// Copyright (c) 2019-2023, Sylabs Inc. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE.md file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"github.com/spf13/cobra"
)

// CommandManager wraps cobra command registration with the flag
// manager, matching the teacher's cmdline.CommandManager: one place
// that both builds the cobra command tree and tracks every flag's
// declared environment-variable keys for later application.
type CommandManager struct {
	fm   *flagManager
	root *cobra.Command
}

// NewCommandManager returns a CommandManager rooted at rootCmd.
func NewCommandManager(rootCmd *cobra.Command) *CommandManager {
	return &CommandManager{
		fm:   newFlagManager(),
		root: rootCmd,
	}
}

// RegisterCmd adds cmd as a subcommand of the root command.
func (m *CommandManager) RegisterCmd(cmd *cobra.Command) {
	m.root.AddCommand(cmd)
}

// RegisterSubCmd adds child as a subcommand of parent.
func (m *CommandManager) RegisterSubCmd(parent, child *cobra.Command) {
	parent.AddCommand(child)
}

// RegisterFlagForCmd registers flag on each of cmds.
func (m *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) error {
	return m.fm.registerFlagForCmd(flag, cmds...)
}

// UpdateCmdFlagFromEnv applies every registered flag's environment
// variable overrides (prefixed with prefix) onto cmd.
func (m *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, prefix string) error {
	return m.fm.updateCmdFlagFromEnv(cmd, prefix)
}
