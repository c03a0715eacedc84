package patch

// The virtual-dsm build scripts assume they can mknod device nodes and
// extract archives containing them. Under an unprivileged container both
// operations fail with EPERM even though the nodes themselves are provided
// by host bind mounts. These sets rewrite the hard "exit on failure" into
// handling that tolerates permission errors and keeps everything else
// fatal.

// InstallerSets returns the patch sets for the virtual-dsm checkout, keyed
// to the two scripts that perform restricted device operations.
func InstallerSets() []*Set {
	return []*Set{
		{
			Name: "install-device-nodes",
			File: "install.sh",
			Patches: []Patch{
				{
					Name:   "mknod-denied-tolerated",
					Anchor: `mknod -m 660 "$DEV_PATH" c "$DEV_MAJOR" "$DEV_MINOR" || exit 1`,
					Replacement: `if ! MKNOD_ERR=$(mknod -m 660 "$DEV_PATH" c "$DEV_MAJOR" "$DEV_MINOR" 2>&1); then
  case "$MKNOD_ERR" in
    *"ermission denied"*|*"peration not permitted"*)
      echo "WARNING: cannot create $DEV_PATH ($MKNOD_ERR); expecting a host bind mount" >&2 ;;
    *)
      echo "$MKNOD_ERR" >&2
      exit 1 ;;
  esac
fi`,
				},
			},
		},
		{
			Name: "install-archive-extraction",
			File: "run/entry.sh",
			Patches: []Patch{
				{
					Name:   "tar-mknod-denied-tolerated",
					Anchor: `tar xpf "$ARCHIVE" -C "$EXTRACT_DIR" || exit 1`,
					Replacement: `if ! TAR_ERR=$(tar xpf "$ARCHIVE" -C "$EXTRACT_DIR" 2>&1); then
  case "$TAR_ERR" in
    *"Cannot mknod"*|*"ermission denied"*|*"peration not permitted"*)
      echo "WARNING: device nodes in $ARCHIVE were skipped ($TAR_ERR)" >&2 ;;
    *)
      echo "$TAR_ERR" >&2
      exit 1 ;;
  esac
fi`,
				},
			},
		},
	}
}
