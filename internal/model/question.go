package model

// Question 由题目管理模块维护，测试引擎只读
// swagger:model Question
type Question struct {
	BaseModel
	AuthorID       uint   `gorm:"index;not null" json:"authorId"`
	Title          string `gorm:"size:200;not null" json:"title"`
	QuestionType   string `gorm:"size:50" json:"questionType"`
	Subject        string `gorm:"size:50;index" json:"subject"`
	Difficulty     string `gorm:"size:20" json:"difficulty"`
	QuestionText   string `gorm:"type:text;not null" json:"questionText"`
	StandardAnswer string `gorm:"type:text;not null" json:"standardAnswer"`
}

func (Question) TableName() string {
	return "questions"
}
