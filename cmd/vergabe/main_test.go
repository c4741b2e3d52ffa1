package main

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vergabeflow/internal/config"
	"vergabeflow/internal/testutil/fakeapi"
	"vergabeflow/internal/types"
	"vergabeflow/internal/wizard"
)

// execute runs the root command with fresh flag values.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	verbose, apiKey, workspace, configPath, timeout = false, "", "", "", 0
	loginEmail, loginPassword = "", ""
	analyzeType, analyzeDescription, analyzePlain, analyzePDF = "", "", false, false
	historyLimit, exportOut, configForce = 20, "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func isolateEnv(t *testing.T) {
	for _, k := range []string{"OPENROUTER_API_KEY", "VERGABE_API_URL", "POCKETBASE_URL", "VITE_POCKETBASE_URL", "VERGABE_DB", "VERGABE_DEBUG", "VERGABE_PASSWORD"} {
		t.Setenv(k, "")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	isolateEnv(t)
	ws := t.TempDir()

	out, err := execute(t, "", "config", "init", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Konfiguration geschrieben")
	assert.FileExists(t, config.DefaultConfigPath(ws))

	_, err = execute(t, "", "config", "init", "-w", ws)
	assert.Error(t, err, "second init must not overwrite")

	_, err = execute(t, "", "config", "init", "-w", ws, "--force")
	assert.NoError(t, err)

	out, err = execute(t, "", "config", "show", "-w", ws, "--api-key", "sk-or-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: https://api.tenderfuchs.de/api")
	assert.NotContains(t, out, "sk-or-secret")
	assert.Contains(t, out, "********")
}

func TestAnalyzeHistoryExport(t *testing.T) {
	isolateEnv(t)
	svc := fakeapi.NewGeneration()
	url := svc.Start()
	defer svc.Close()
	t.Setenv("VERGABE_API_URL", url)
	ws := t.TempDir()

	out, err := execute(t, "15 Zoll\n\nWindows 11\n",
		"analyze", "-w", ws, "--api-key", "sk-or-cli",
		"--type", "Hardware", "--description", "Beschaffung von 50 Laptops",
		"--plain", "--pdf")
	require.NoError(t, err)
	assert.Contains(t, out, "Mögliche Antworten: 13 Zoll, 15 Zoll")
	assert.Contains(t, out, "50 Laptops")
	assert.Contains(t, out, "PDF wurde erstellt")
	assert.FileExists(t, filepath.Join(ws, config.DefaultFileName))

	// the blank line re-prompted the second question
	assert.Equal(t, 3, strings.Count(out, "Antwort: "))
	for _, r := range svc.Requests() {
		assert.Equal(t, "sk-or-cli", r.APIKey())
	}

	m := regexp.MustCompile(`Analyse gespeichert: (\S+)`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	id := m[1]

	out, err = execute(t, "", "history", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, id[:8])
	assert.Contains(t, out, "Hardware")
	assert.Contains(t, out, "fertig")

	out, err = execute(t, "", "history", "show", id[:8], "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Antwort: Windows 11")
	assert.Contains(t, out, "Zuletzt exportiert: "+filepath.Join(ws, config.DefaultFileName))

	pdf := filepath.Join(ws, "out", "analyse.pdf")
	_, err = execute(t, "", "export", id, "-w", ws, "--out", pdf)
	require.NoError(t, err)
	info, err := os.Stat(pdf)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	_, err = execute(t, "", "history", "delete", id, "-w", ws)
	require.NoError(t, err)
	out, err = execute(t, "", "history", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Keine Analysen gespeichert")
}

func TestLoginWhoamiLogout(t *testing.T) {
	isolateEnv(t)
	idp := fakeapi.NewIdentity()
	idp.AddAccount("anna@example.de", "geheim", types.User{ID: "u1", Email: "anna@example.de", Name: "Anna"})
	t.Setenv("POCKETBASE_URL", idp.Start())
	defer idp.Close()
	ws := t.TempDir()

	_, err := execute(t, "", "login", "-w", ws, "--email", "anna@example.de", "--password", "falsch")
	assert.Error(t, err)

	out, err := execute(t, "geheim\n", "login", "-w", ws, "--email", "anna@example.de")
	require.NoError(t, err)
	assert.Contains(t, out, "Angemeldet als Anna")
	assert.FileExists(t, filepath.Join(ws, ".vergabe", "auth.json"))

	out, err = execute(t, "", "whoami", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Angemeldet als Anna (anna@example.de)")

	out, err = execute(t, "", "logout", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Erfolgreich abgemeldet")

	out, err = execute(t, "", "whoami", "-w", ws)
	require.NoError(t, err)
	assert.Contains(t, out, "Nicht angemeldet")
}

func TestAskQuestionsKeepsPrefill(t *testing.T) {
	pending := []wizard.PendingQuestion{
		{Question: types.Question{ID: "q-0", Text: "Größe?"}, Prefill: "15 Zoll"},
		{Question: types.Question{ID: "q-1", Text: "System?"}},
	}
	in := bufio.NewReader(strings.NewReader("\n  \nLinux\n"))
	var out bytes.Buffer

	answers, err := askQuestions(in, &out, pending, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.Answer{
		{QuestionID: "q-0", Text: "15 Zoll"},
		{QuestionID: "q-1", Text: "Linux"},
	}, answers)
	assert.Contains(t, out.String(), "3. Größe?")
	assert.Contains(t, out.String(), "Antwort [15 Zoll]: ")
}

func TestQuestionOffset(t *testing.T) {
	qs := []types.Question{{ID: "q-0"}, {ID: "q-1"}, {ID: "q-2"}}
	tests := []struct {
		name    string
		stage   wizard.Stage
		answers int
		pending int
		want    int
	}{
		{"initial round without answers", wizard.StageInitialQuestions, 0, 3, 0},
		{"initial round revisited", wizard.StageInitialQuestions, 2, 3, 0},
		{"follow-up round", wizard.StageFollowUpQuestions, 2, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := wizard.State{Stage: tt.stage, Questions: qs}
			for i := 0; i < tt.answers; i++ {
				st.Answers = append(st.Answers, types.Answer{QuestionID: qs[i].ID, Text: "x"})
			}
			pending := make([]wizard.PendingQuestion, tt.pending)
			assert.Equal(t, tt.want, questionOffset(st, pending))
		})
	}
}

func TestAskQuestionsEOF(t *testing.T) {
	pending := []wizard.PendingQuestion{{Question: types.Question{ID: "q-0", Text: "Größe?"}}}
	_, err := askQuestions(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, pending, 0)
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("eins\r\nzwei"))
	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "eins", line)
	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "zwei", line)
	_, err = readLine(r)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "Hardware", truncate("Hardware", 20))
	assert.Equal(t, "IT-Dienst…", truncate("IT-Dienstleistung", 10))
	assert.Equal(t, "12345678", shortID("1234567890"))
	assert.Equal(t, "abc", shortID("abc"))
}
