package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// 两个阶段的生成参数
	assert.InDelta(t, 0.4, cfg.QuestionStage.Temperature, 0.0001)
	assert.Equal(t, 1500, cfg.QuestionStage.MaxTokens)
	assert.InDelta(t, 0.3, cfg.ScoringStage.Temperature, 0.0001)
	assert.Equal(t, 2000, cfg.ScoringStage.MaxTokens)

	// 评估策略参数
	assert.Equal(t, 5, cfg.Evaluation.MaxQuestions)
	assert.Equal(t, 80, cfg.Evaluation.MandatoryExperiencePct)
	assert.Equal(t, 50, cfg.Evaluation.MinCVChars)

	assert.Equal(t, 30, cfg.LLM.TimeoutSeconds)
	assert.Equal(t, "candidate.decision.exchange", cfg.RabbitMQ.DecisionExchange)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
llm:
  api_key: "clave-de-prueba"
  model: "gpt-4o"
question_stage:
  temperature: 0.5
evaluation:
  max_questions: 3
  role_equivalences:
    - ["Product Manager", "Gerente de Producto"]
postgres:
  host: "db.example.com"
  database: "ats"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "clave-de-prueba", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.InDelta(t, 0.5, cfg.QuestionStage.Temperature, 0.0001)
	assert.Equal(t, 3, cfg.Evaluation.MaxQuestions)
	require.Len(t, cfg.Evaluation.RoleEquivalences, 1)
	assert.Equal(t, "db.example.com", cfg.Postgres.Host)

	// 未覆盖的字段保留默认值
	assert.Equal(t, 2000, cfg.ScoringStage.MaxTokens)
	assert.Equal(t, 80, cfg.Evaluation.MandatoryExperiencePct)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  api_key: \"desde-yaml\"\n"), 0o644))

	t.Setenv("ATS_LLM_API_KEY", "desde-env")
	t.Setenv("ATS_LLM_MODEL", "modelo-env")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "desde-env", cfg.LLM.APIKey)
	assert.Equal(t, "modelo-env", cfg.LLM.Model)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(": :\n\t-"), 0o644))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}
