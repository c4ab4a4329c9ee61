package quadtree

// Binary layout (all integers little-endian):
//
//	field                      bytes   note
//	root_quadkey               8       framed QuadKey64 of the root tile
//	blob_version               2       must equal BlobVersion (0)
//	depth                      1       signed, <= 4
//	parent_count               1
//	subkey_count               2
//	sub_entries[subkey_count]  6 each  {sub_quadkey:u16, tag_offset:u32}, ascending by sub_quadkey
//	parent_entries[parent_count] 12 each {quadkey:u64, tag_offset:u32}, ascending by quadkey
//	tag_area[]                 var     per entry: version:u64, data_size:i64,
//	                                   compressed_size:i64, then 4 NUL-terminated
//	                                   strings (data_handle, checksum,
//	                                   additional_metadata, crc); crc is
//	                                   optional on read.
