package dbmysql

// User is the read-only slice of the profile table the chat service needs.
// The profile service owns the table and its migrations.
type User struct {
	UserID      uint64 `gorm:"primaryKey;column:user_id;autoIncrement" json:"userId"`
	Handle      string `gorm:"column:handle;uniqueIndex;size:50;not null" json:"handle"`
	DisplayName string `gorm:"column:display_name;size:100" json:"displayName"`
	AvatarURL   string `gorm:"column:avatar_url;size:512" json:"avatarUrl"`
}

func (User) TableName() string {
	return "users"
}
