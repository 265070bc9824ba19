// Package sshutil gives file-backed zones access to a remote DNS host.
//
// A [Client] holds one SSH connection, authenticated by key or password and
// verified against a known_hosts file. [SFTPFileSystem] and
// [SSHCommandRunner] use it to rewrite a zone file and run the reload
// command; [LocalFileSystem] and [LocalCommandRunner] do the same on this
// host.
//
//	cfg, err := sshutil.LoadConfigFromMap(zoneSettings, "SSH_")
//	if err != nil {
//		return err
//	}
//	client, err := sshutil.NewClient(cfg, sshutil.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	fs := sshutil.NewSFTPFileSystem(client)
//	if err := fs.Connect(ctx); err != nil {
//		return err
//	}
//	if err := fs.WriteFile(path+".tmp", data, 0o644); err != nil {
//		return err
//	}
//	if err := fs.Rename(path+".tmp", path); err != nil {
//		return err
//	}
//	return sshutil.NewSSHCommandRunner(client).Run(ctx, "systemctl reload dnsmasq")
//
// Rename over SFTP uses the posix-rename@openssh.com extension, which
// OpenSSH servers support, so an existing file is replaced in one step.
package sshutil
