package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	_ "github.com/go-sql-driver/mysql"
)

const upsertPositionQuery = `
	INSERT INTO player_positions (nick_key, nick, x, y, z)
	VALUES (?, ?, ?, ?, ?)
	ON DUPLICATE KEY UPDATE
		nick = VALUES(nick),
		x = VALUES(x),
		y = VALUES(y),
		z = VALUES(z),
		updated_at = CURRENT_TIMESTAMP
`

// MariaPositionRepo реализует PositionRepo для базы данных MariaDB/MySQL.
// Использует таблицу player_positions для хранения позиций игроков.
type MariaPositionRepo struct {
	db *sql.DB
}

// NewMariaPositionRepo создает новый репозиторий позиций для MariaDB.
// Автоматически создает таблицу, если она не существует.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname?parseTime=true)
func NewMariaPositionRepo(dsn string) (*MariaPositionRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaPositionRepo{db: db}

	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}

	return repo, nil
}

// createTable создает таблицу player_positions, если она не существует.
func (r *MariaPositionRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS player_positions (
			nick_key   VARCHAR(32) PRIMARY KEY,
			nick       VARCHAR(64) NOT NULL,
			x          DOUBLE      NOT NULL,
			y          DOUBLE      NOT NULL,
			z          DOUBLE      NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			INDEX idx_updated_at (updated_at)
		) ENGINE=InnoDB
	`

	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы player_positions: %w", err)
	}

	return nil
}

// Save сохраняет позицию игрока (INSERT ... ON DUPLICATE KEY UPDATE).
func (r *MariaPositionRepo) Save(ctx context.Context, nick string, pos mgl64.Vec3) error {
	key, err := validatePosition(nick, pos)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, upsertPositionQuery, key, nick, pos.X(), pos.Y(), pos.Z())
	if err != nil {
		return fmt.Errorf("ошибка сохранения позиции для игрока %s: %w", nick, err)
	}

	return nil
}

// Load загружает позицию игрока из базы данных.
func (r *MariaPositionRepo) Load(ctx context.Context, nick string) (LastPosition, bool, error) {
	key := PositionKey(nick)
	if key == "" {
		return LastPosition{}, false, ErrInvalidNick
	}

	query := `SELECT nick, x, y, z, updated_at FROM player_positions WHERE nick_key = ?`

	var lp LastPosition
	err := r.db.QueryRowContext(ctx, query, key).
		Scan(&lp.Nick, &lp.Position[0], &lp.Position[1], &lp.Position[2], &lp.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// Игрок ещё не сохранялся
		return LastPosition{}, false, nil
	}
	if err != nil {
		return LastPosition{}, false, fmt.Errorf("ошибка загрузки позиции для игрока %s: %w", nick, err)
	}

	return lp, true, nil
}

// Delete удаляет сохраненную позицию игрока.
func (r *MariaPositionRepo) Delete(ctx context.Context, nick string) error {
	key := PositionKey(nick)
	if key == "" {
		return ErrInvalidNick
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM player_positions WHERE nick_key = ?`, key)
	if err != nil {
		return fmt.Errorf("ошибка удаления позиции для игрока %s: %w", nick, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ошибка получения количества затронутых строк: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("позиция для игрока %s не найдена", nick)
	}

	return nil
}

// BatchSave сохраняет позиции нескольких игроков в одной транзакции.
func (r *MariaPositionRepo) BatchSave(ctx context.Context, positions map[string]mgl64.Vec3) error {
	if len(positions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback() // Откат в случае ошибки

	stmt, err := tx.PrepareContext(ctx, upsertPositionQuery)
	if err != nil {
		return fmt.Errorf("ошибка подготовки запроса: %w", err)
	}
	defer stmt.Close()

	for nick, pos := range positions {
		key, err := validatePosition(nick, pos)
		if err != nil {
			return err
		}

		if _, err = stmt.ExecContext(ctx, key, nick, pos.X(), pos.Y(), pos.Z()); err != nil {
			return fmt.Errorf("ошибка сохранения позиции для игрока %s в batch: %w", nick, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}

	return nil
}

// Close закрывает соединение с базой данных.
func (r *MariaPositionRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
