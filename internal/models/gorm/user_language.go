package gorm

// UserLanguage stores an origin's preferred reply language (#osmlang).
type UserLanguage struct {
	Origin   string `gorm:"column:origin;primaryKey;type:varchar(32)"`
	Language string `gorm:"column:language;not null;type:varchar(8)"`
}

// TableName specifies the table name for GORM
func (UserLanguage) TableName() string {
	return "user_languages"
}
