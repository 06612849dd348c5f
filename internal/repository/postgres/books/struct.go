package books

// columns is the select list shared by every book query; scanBook reads it.
const columns = `
	id, title, author, category,
	file_ref, file_name, file_size,
	COALESCE(cover_ref, ''),
	downloads, created_at,
	COALESCE(source_message_id, 0),
	added_by`
