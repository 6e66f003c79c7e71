package main

import (
	"bytes"
	"path"
	"strings"
	"testing"

	"go-blockdb/pkg/accounts"

	"github.com/stretchr/testify/require"
)

func TestShell(t *testing.T) {
	db, err := accounts.Open(path.Join(t.TempDir(), "accounts.data"), nil)
	require.NoError(t, err)
	defer db.Close()

	out := &bytes.Buffer{}
	sh := &shell{db: db, out: out}

	require.False(t, sh.execute("INSERT 111 Arturo Vidal 37 45716542889 2499999"))
	id := strings.TrimSpace(out.String())
	require.Len(t, id, 36)

	out.Reset()
	sh.execute("find " + id)
	require.Contains(t, out.String(), "name='Arturo Vidal'")
	require.Contains(t, out.String(), "balance=2499999")

	out.Reset()
	sh.execute("BALANCE " + id + " 10")
	require.Empty(t, out.String())
	sh.execute("FINDBY Arturo 37")
	require.Contains(t, out.String(), "balance=10")
	require.Contains(t, out.String(), "1 account(s)")

	out.Reset()
	sh.execute("VERIFY")
	require.Equal(t, "ok\n", out.String())

	out.Reset()
	sh.execute("DELETE " + id)
	sh.execute("FIND " + id)
	require.Contains(t, out.String(), "error: account "+id)

	out.Reset()
	sh.execute("INSERT 1 2")
	require.Contains(t, out.String(), "usage: INSERT")

	out.Reset()
	sh.execute("SELECT *")
	require.Contains(t, out.String(), "unknown command")

	require.True(t, sh.execute(".exit"))
}
