//
// Tencent is pleased to support the open source community by making trpc-flow-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-flow-go is licensed under the Apache License Version 2.0.
//
//

package codeexecutor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLanguage(t *testing.T) {
	for _, alias := range []string{"python", "py", "Python3"} {
		lang, ok := NormalizeLanguage(alias)
		require.True(t, ok, alias)
		require.Equal(t, "python", lang)
	}
	for _, alias := range []string{"bash", "sh", "SHELL"} {
		lang, ok := NormalizeLanguage(alias)
		require.True(t, ok, alias)
		require.Equal(t, "bash", lang)
	}
	_, ok := NormalizeLanguage("fortran")
	require.False(t, ok)
}

func TestExtractCodeBlocks(t *testing.T) {
	text := "Here you go:\n```python\nprint(1)\n```\nand\n```\nls\n```"
	blocks := ExtractCodeBlocks(text)
	require.Len(t, blocks, 2)
	require.Equal(t, "python", blocks[0].Language)
	require.Equal(t, "print(1)\n", blocks[0].Code)
	require.Empty(t, blocks[1].Language)
}

func TestExtractCodeBlocksPlainText(t *testing.T) {
	blocks := ExtractCodeBlocks("print(2+2)")
	require.Len(t, blocks, 1)
	require.Equal(t, "print(2+2)", blocks[0].Code)
	require.Empty(t, ExtractCodeBlocks("   \n"))
}

func TestResultOutput(t *testing.T) {
	require.Equal(t, "out", Result{Stdout: "out", Stderr: "err"}.Output())
	require.Equal(t, "err", Result{Stderr: "err"}.Output())
}
