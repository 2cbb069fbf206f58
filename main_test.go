package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/prepbot/internal/database"
	"github.com/example/prepbot/pkg/models"
)

func TestImportCommand(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"id,kind,prompt,answer,details,topic\n"+
			"vocab:ubiquitous,vocab,ubiquitous,present everywhere,,\n"+
			",idiom,break the ice,start a conversation,,\n"), 0644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{
		"import", csvPath,
		"--env-file", filepath.Join(dir, "none.env"),
		"--database-url", filepath.Join(dir, "data", "prepbot.db"),
	})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "2 created")
	assert.Contains(t, out.String(), "catalog now holds 2 items")
	assert.FileExists(t, filepath.Join(dir, "data", "prepbot.db"))
}

func TestImportCommandRequiresFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"import"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestServeRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"serve", "--env-file", filepath.Join(dir, "none.env")})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, root.Execute(), "TELEGRAM_BOT_TOKEN")
}

func TestCatalogAndPurgeCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "prepbot.db")
	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		root := newRootCmd()
		root.SetOut(&out)
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(append(args, "--env-file", filepath.Join(dir, "none.env"), "--database-url", dbPath))
		require.NoError(t, root.Execute())
		return out.String()
	}

	csvPath := filepath.Join(dir, "catalog.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"id,kind,prompt,answer,details,topic\n"+
			",vocab,ubiquitous,present everywhere,,\n"+
			",vocab,frugal,sparing with money,,\n"+
			",idiom,break the ice,start a conversation,,Idioms\n"), 0644))
	assert.Contains(t, run("import", csvPath), "catalog now holds 3 items")

	out := run("catalog", "--kind", "idiom")
	assert.Contains(t, out, "idiom:break-the-ice")
	assert.NotContains(t, out, "vocab:frugal")
	assert.Contains(t, out, "1 idiom items shown, 3 items in catalog")

	db, err := database.Connect("sqlite", dbPath)
	require.NoError(t, err)
	records := database.NewReviewRecordRepository(db)
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"vocab:frugal", "idiom:break-the-ice"} {
		require.NoError(t, records.Put(context.Background(), models.ReviewRecord{
			UserID: 42, ItemID: id, Stage: models.StageNew, EaseFactor: 2.5, DueAt: now,
		}))
	}
	require.NoError(t, db.Close())

	assert.Contains(t, run("purge", "--user", "42"), "deleted 2 review records of user 42")
	assert.Contains(t, run("purge", "--user", "42"), "deleted 0 review records")
}

func TestPurgeRequiresUser(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"purge", "--env-file", filepath.Join(t.TempDir(), "none.env")})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, root.Execute(), "--user")
}

func TestRemindRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	dir := t.TempDir()

	root := newRootCmd()
	root.SetArgs([]string{"remind", "--user", "42", "--env-file", filepath.Join(dir, "none.env"), "--database-url", filepath.Join(dir, "prepbot.db")})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	assert.ErrorContains(t, root.Execute(), "TELEGRAM_BOT_TOKEN")
}
