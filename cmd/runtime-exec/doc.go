// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// runtime-exec attaches to one running kernel through its connection
// file, executes a block of code, and prints the outputs the kernel
// broadcasts for that execution.
//
//	runtime-exec --connection-file ~/.local/share/jupyter/runtime/kernel-1234.json --code '1+1'
//
// Stream text is copied to stdout as it arrives. Execution results and
// display data print their text/plain representation, and errors print
// their traceback. Output ends when the kernel reports idle for the
// request, followed by a "status: <status>" line from the execute
// reply. A reply status other than "ok" exits non-zero.
//
// --kernel-info prints the kernel's implementation and language before
// executing. --timeout bounds the whole exchange (default 30s).
package main
