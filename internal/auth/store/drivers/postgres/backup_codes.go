package postgres

import "context"

type backupCodesRepo struct {
	db querier
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, userID, codeHash string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO mfa_backup_codes (user_id, code_hash) VALUES ($1, $2)`, userID, codeHash)
	return mapErr(err)
}

func (r *backupCodesRepo) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM mfa_backup_codes WHERE user_id = $1 AND code_hash = $2`, userID, codeHash)
	if err != nil {
		return false, mapErr(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *backupCodesRepo) DeleteAllBackupCodes(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM mfa_backup_codes WHERE user_id = $1`, userID)
	return mapErr(err)
}

func (r *backupCodesRepo) CountUserBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM mfa_backup_codes WHERE user_id = $1`, userID).Scan(&n)
	return n, mapErr(err)
}
