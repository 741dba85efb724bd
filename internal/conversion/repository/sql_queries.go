package repository

const (
	saveRecordQuery = `INSERT INTO conversion_history (job_id, media_id, kind, state, output_path, label, message, started_at, finished_at)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
					ON CONFLICT (job_id) DO UPDATE
					SET state = EXCLUDED.state, message = EXCLUDED.message, finished_at = EXCLUDED.finished_at`
	getTotalRecordsQuery = `SELECT COUNT(job_id) FROM conversion_history`
	getRecordsQuery      = `SELECT job_id, media_id, kind, state, output_path, label, message, started_at, finished_at
					FROM conversion_history ORDER BY finished_at DESC OFFSET $1 LIMIT $2`
	getTotalRecordsByMediaQuery = `SELECT COUNT(job_id) FROM conversion_history WHERE media_id = $1`
	getRecordsByMediaQuery      = `SELECT job_id, media_id, kind, state, output_path, label, message, started_at, finished_at
					FROM conversion_history WHERE media_id = $1 ORDER BY finished_at DESC OFFSET $2 LIMIT $3`
)
