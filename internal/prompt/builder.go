package prompt

import (
	"fmt"
	"sort"
	"strings"

	"ats-agent-go/internal/types"
)

// Builder 两个流水线阶段的Prompt构建器
// 纯函数式：相同输入产生相同输出，无隐藏状态、无I/O
type Builder struct {
	policy Policy
}

// NewBuilder 创建Prompt构建器
func NewBuilder(policy Policy) *Builder {
	return &Builder{policy: policy}
}

// Policy 返回当前使用的评估策略
func (b *Builder) Policy() Policy {
	return b.policy
}

// BuildQuestionPrompt 构建问题生成阶段的Prompt
// 只针对需求列表提问，绝不针对CV中提到但列表外的技能
func (b *Builder) BuildQuestionPrompt(cvText string, mandatory []types.Requirement, optional []types.Requirement, customInstructions string) string {
	var sb strings.Builder

	sb.WriteString("Eres un reclutador técnico experto. Tu tarea es analizar el CV de un candidato frente a los requisitos de una vacante y generar preguntas de filtrado SOLO cuando la evidencia del CV sea ambigua o insuficiente.\n\n")

	sb.WriteString("## REQUISITOS INDISPENSABLES\n")
	sb.WriteString(b.renderRequirements(mandatory))
	sb.WriteString("\n## REQUISITOS DESEABLES\n")
	sb.WriteString(b.renderRequirements(optional))

	sb.WriteString("\n## REGLAS DE ANÁLISIS\n")
	sb.WriteString("1. Genera preguntas ÚNICAMENTE sobre los requisitos listados arriba. NUNCA preguntes sobre habilidades que aparecen en el CV pero que no están en las listas de requisitos.\n")
	sb.WriteString("2. Distingue entre experiencia laboral declarada y una simple mención de habilidad: un término que aparece dentro de la descripción de un puesto de trabajo cuenta como experiencia; el mismo término en una lista plana de \"habilidades\" NO cuenta como experiencia comprobada y amerita pregunta.\n")
	sb.WriteString("3. Equivalencias de puestos (trátalos como el mismo rol, no preguntes por la diferencia de nombre):\n")
	sb.WriteString(b.renderRoleEquivalences())
	sb.WriteString("4. Certificaciones: un curso relacionado cuenta como cumplimiento de un requisito de certificación. No preguntes por la certificación exacta si el CV muestra un curso equivalente.\n")
	sb.WriteString("5. Niveles de experiencia de referencia:\n")
	sb.WriteString(b.renderLevelLegend())
	sb.WriteString("6. Prioridad de las preguntas: (a) requisito indispensable sin evidencia, (b) requisito indispensable con evidencia ambigua, (c) requisito deseable sin evidencia.\n")
	sb.WriteString(fmt.Sprintf("7. Genera como MÁXIMO %d preguntas. Si toda la evidencia es clara, genera menos preguntas o ninguna.\n", b.policy.MaxQuestions))

	if customInstructions != "" {
		sb.WriteString("\n## INSTRUCCIONES ADICIONALES DEL RECLUTADOR\n")
		sb.WriteString(customInstructions)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## CV DEL CANDIDATO\n")
	sb.WriteString(cvText)

	sb.WriteString("\n\n## FORMATO DE SALIDA\n")
	sb.WriteString("Responde SOLO con un objeto JSON válido, sin texto adicional, con esta estructura exacta:\n")
	sb.WriteString(`{
  "questions": [
    {
      "question": "texto de la pregunta dirigida al candidato",
      "reason": "por qué esta pregunta es necesaria",
      "cv_evidence": "cita o resumen de la evidencia (o ausencia) en el CV",
      "is_mandatory": true
    }
  ]
}`)
	sb.WriteString("\n`is_mandatory` debe ser true si la pregunta valida un requisito indispensable, false si valida uno deseable.\n")

	return sb.String()
}

// BuildScoringPrompt 构建评分阶段的Prompt
// 编码"适度宽容"的评估策略：跨语言同义匹配、OCR噪声处理、年限阈值等
func (b *Builder) BuildScoringPrompt(cvText string, mandatory []types.Requirement, optional []types.Requirement, answered []types.QuestionAnswer, customInstructions string) string {
	var sb strings.Builder

	sb.WriteString("Eres un evaluador de candidatos experto y moderadamente tolerante. Evalúa al candidato frente a los requisitos de la vacante usando su CV y sus respuestas a las preguntas de filtrado.\n\n")

	sb.WriteString("## REQUISITOS INDISPENSABLES\n")
	sb.WriteString(b.renderRequirements(mandatory))
	sb.WriteString("\n## REQUISITOS DESEABLES\n")
	sb.WriteString(b.renderRequirements(optional))

	sb.WriteString("\n## POLÍTICA DE EVALUACIÓN (aplícala en este orden)\n")
	sb.WriteString("1. Coincidencia semántica: acepta sinónimos, variantes de redacción y términos equivalentes en español o inglés. Equivalencias de puestos:\n")
	sb.WriteString(b.renderRoleEquivalences())
	sb.WriteString("2. Texto de CV con ruido de OCR: si un término relevante aparece cerca de un bloque de puesto/empresa/fechas, cuéntalo como experiencia profesional. Si el mismo término solo aparece en una lista plana de habilidades, NO lo cuentes como experiencia profesional.\n")
	sb.WriteString(fmt.Sprintf("3. Requisitos de experiencia o herramienta con años: se cumple si el candidato acredita al menos el %d%% de los años requeridos. Niveles de referencia:\n", b.policy.MandatoryExperiencePct))
	sb.WriteString(b.renderLevelLegend())
	sb.WriteString("4. Períodos de experiencia fragmentados en varios empleos SE SUMAN.\n")
	sb.WriteString("5. Certificaciones: evaluación binaria; un curso de formación equivalente cuenta como cumplimiento.\n")
	sb.WriteString("6. Los requisitos deseables SOLO suman puntos; su ausencia NUNCA causa rechazo.\n")
	sb.WriteString("7. `meetsAllMandatory` es true únicamente si TODOS los requisitos indispensables se cumplen según las reglas anteriores.\n")

	if customInstructions != "" {
		sb.WriteString("\n## INSTRUCCIONES ADICIONALES DEL RECLUTADOR\n")
		sb.WriteString(customInstructions)
		sb.WriteString("\n")
	}

	sb.WriteString("\n## CV DEL CANDIDATO\n")
	sb.WriteString(cvText)

	sb.WriteString("\n\n## PREGUNTAS DE FILTRADO Y RESPUESTAS DEL CANDIDATO\n")
	sb.WriteString(renderAnsweredQuestions(answered))

	sb.WriteString("\n## FORMATO DE SALIDA\n")
	sb.WriteString("Responde SOLO con un objeto JSON válido, sin texto adicional, con esta estructura exacta:\n")
	sb.WriteString(`{
  "score": 85,
  "meetsAllMandatory": true,
  "mandatory_evaluation": [
    {"requirement": "título del requisito", "meets": true, "evidence": "evidencia encontrada"}
  ],
  "optional_evaluation": [
    {"requirement": "título del requisito", "meets": false, "evidence": "evidencia encontrada"}
  ],
  "summary": "resumen breve de la evaluación"
}`)
	sb.WriteString("\n`score` es un entero entre 0 y 100.\n")

	return sb.String()
}

// renderRequirements 渲染需求列表，带级别与参考年限
func (b *Builder) renderRequirements(reqs []types.Requirement) string {
	if len(reqs) == 0 {
		return "(ninguno)\n"
	}
	var sb strings.Builder
	for _, req := range reqs {
		sb.WriteString("- ")
		sb.WriteString(req.Title)
		if req.Level != "" {
			if years := b.policy.YearsForLevel(req.Level); years > 0 {
				sb.WriteString(fmt.Sprintf(" (nivel: %s, referencia: %d+ años)", req.Level, years))
			} else {
				sb.WriteString(fmt.Sprintf(" (nivel: %s)", req.Level))
			}
		}
		if req.Category != "" {
			sb.WriteString(fmt.Sprintf(" [%s]", req.Category))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderRoleEquivalences 渲染职位等价表
func (b *Builder) renderRoleEquivalences() string {
	var sb strings.Builder
	for _, group := range b.policy.RoleEquivalences {
		if len(group) < 2 {
			continue
		}
		sb.WriteString("   - ")
		sb.WriteString(strings.Join(group, " ≡ "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderLevelLegend 渲染级别年限对照表，按年限升序保证输出确定性
func (b *Builder) renderLevelLegend() string {
	type levelEntry struct {
		name  string
		years int
	}
	entries := make([]levelEntry, 0, len(b.policy.LevelYears))
	for name, years := range b.policy.LevelYears {
		entries = append(entries, levelEntry{name: name, years: years})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].years != entries[j].years {
			return entries[i].years < entries[j].years
		}
		return entries[i].name < entries[j].name
	})

	var sb strings.Builder
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("   - %s: %d+ años\n", e.name, e.years))
	}
	return sb.String()
}

// renderAnsweredQuestions 渲染已回答的问题列表，标注需求属性
func renderAnsweredQuestions(answered []types.QuestionAnswer) string {
	if len(answered) == 0 {
		return "(sin preguntas)\n"
	}
	var sb strings.Builder
	for i, qa := range answered {
		tag := "[DESEABLE]"
		if qa.IsMandatory {
			tag = "[INDISPENSABLE]"
		}
		sb.WriteString(fmt.Sprintf("%d. %s Pregunta: %s\n   Respuesta: %s\n", i+1, tag, qa.Question, qa.Answer))
	}
	return sb.String()
}
