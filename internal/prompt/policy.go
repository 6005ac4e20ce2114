package prompt

import "ats-agent-go/internal/config"

// Policy 评估策略参数的结构化形态
// Prompt中的等价表和阈值就是真正的业务决策逻辑，抽出来以便单元测试直接断言生成的Prompt内容
type Policy struct {
	// 每个候选人最多生成的甄别问题数
	MaxQuestions int
	// 必备经验年限的达标百分比阈值，例如80表示达到要求年限的80%即视为满足
	MandatoryExperiencePct int
	// 职位名称等价组，组内名称在评估时视为同一职位
	RoleEquivalences [][]string
	// 需求级别到参考经验年限的映射
	LevelYears map[string]int
}

// DefaultPolicy 返回默认评估策略
func DefaultPolicy() Policy {
	return Policy{
		MaxQuestions:           5,
		MandatoryExperiencePct: 80,
		RoleEquivalences: [][]string{
			{"Product Manager", "Gerente de Producto", "PM"},
			{"Software Engineer", "Ingeniero de Software", "Desarrollador", "Developer"},
			{"Data Scientist", "Científico de Datos"},
			{"QA Engineer", "Ingeniero de Calidad", "Tester", "Analista QA"},
			{"DevOps Engineer", "Ingeniero DevOps", "SRE"},
		},
		LevelYears: map[string]int{
			"básico":     1,
			"intermedio": 3,
			"avanzado":   5,
		},
	}
}

// PolicyFromConfig 从配置构造策略，未配置的字段回退到默认值
func PolicyFromConfig(cfg config.EvaluationConfig) Policy {
	p := DefaultPolicy()
	if cfg.MaxQuestions > 0 {
		p.MaxQuestions = cfg.MaxQuestions
	}
	if cfg.MandatoryExperiencePct > 0 {
		p.MandatoryExperiencePct = cfg.MandatoryExperiencePct
	}
	if len(cfg.RoleEquivalences) > 0 {
		p.RoleEquivalences = cfg.RoleEquivalences
	}
	if len(cfg.LevelYears) > 0 {
		p.LevelYears = cfg.LevelYears
	}
	return p
}

// YearsForLevel 返回需求级别对应的参考年限，未知级别返回0
func (p Policy) YearsForLevel(level string) int {
	return p.LevelYears[level]
}
