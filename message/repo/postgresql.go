package repo

import (
	"log"

	"github.com/MJ5aif/skillconnect/message/repo/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var DB *gorm.DB

// InitDB 初始化数据库连接
func InitDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	DB = db

	// 自动迁移
	autoMigrate()

	return DB, nil
}

// autoMigrate 自动迁移所有模型
func autoMigrate() {
	err := DB.AutoMigrate(
		&model.Conversation{},
		&model.ConversationMember{},
		&model.Message{},
	)
	if err != nil {
		log.Fatal("数据库迁移失败：", err)
	}
}

// CloseDB 关闭数据库连接
func CloseDB() {
	sqlDB, err := DB.DB() // 获取底层的 *sql.DB
	if err != nil {
		log.Println("获取 sql.DB 实例失败：", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Println("关闭数据库连接失败：", err)
	}
}
