package launch

// WorkProperties is the per-sub-dispatch constant-buffer record spec.md
// §4.4 names: "global_offset_{x,y,z}, work_dim, group_count_total_{x,y,z},
// padding, group_id_offset_{x,y,z}". The device-side get_global_id() is
// reconstructed by summing group_id_offset with the dispatch-local group id.
type WorkProperties struct {
	GlobalOffsetX, GlobalOffsetY, GlobalOffsetZ uint32
	WorkDim                                     uint32
	GroupCountTotalX, GroupCountTotalY, GroupCountTotalZ uint32
	Padding                                      uint32
	GroupIDOffsetX, GroupIDOffsetY, GroupIDOffsetZ uint32
}

// SubDispatch is one tile of a possibly-split launch: the native Dispatch
// call's group counts plus the WorkProperties record it needs bound.
type SubDispatch struct {
	Groups [3]uint32
	Props  WorkProperties
}

// Tile splits ws's group count into a 3D loop of sub-dispatches, each
// bounded by maxGroups per dimension (spec.md §4.4 "Dispatch tiling": "If
// any dispatch-dimension exceeds MAX_DISPATCH_GROUPS, split the launch into
// a 3D loop of sub-dispatches").
func Tile(nd NDRange, ws WorkSize, maxGroups uint32) []SubDispatch {
	var tilesPerDim [3]uint32
	for d := 0; d < 3; d++ {
		if ws.GroupCount[d] == 0 {
			tilesPerDim[d] = 1
			continue
		}
		tilesPerDim[d] = uint32((ws.GroupCount[d] + uint64(maxGroups) - 1) / uint64(maxGroups))
	}

	var out []SubDispatch
	for tz := uint32(0); tz < tilesPerDim[2]; tz++ {
		for ty := uint32(0); ty < tilesPerDim[1]; ty++ {
			for tx := uint32(0); tx < tilesPerDim[0]; tx++ {
				offset := [3]uint32{tx * maxGroups, ty * maxGroups, tz * maxGroups}
				groups := [3]uint32{}
				for d, off := range offset {
					remaining := ws.GroupCount[d] - uint64(off)
					if remaining > uint64(maxGroups) {
						remaining = uint64(maxGroups)
					}
					groups[d] = uint32(remaining)
				}
				out = append(out, SubDispatch{
					Groups: groups,
					Props: WorkProperties{
						GlobalOffsetX: uint32(nd.GlobalWorkOffset[0]),
						GlobalOffsetY: uint32(nd.GlobalWorkOffset[1]),
						GlobalOffsetZ: uint32(nd.GlobalWorkOffset[2]),
						WorkDim:       uint32(nd.WorkDim),
						GroupCountTotalX: uint32(ws.GroupCount[0]),
						GroupCountTotalY: uint32(ws.GroupCount[1]),
						GroupCountTotalZ: uint32(ws.GroupCount[2]),
						GroupIDOffsetX: offset[0],
						GroupIDOffsetY: offset[1],
						GroupIDOffsetZ: offset[2],
					},
				})
			}
		}
	}
	return out
}
